package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	dir    string
	root   bool
	yes    bool
	in     io.Reader
	out    io.Writer
	logOut io.Writer
}

func newApplication(opts []Option) *application {
	app := &application{in: os.Stdin, out: os.Stdout, logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithDir sets the directory to sync: a repository directory, or with
// WithRoot a directory of repository directories.
func WithDir(dir string) Option {
	return func(a *application) {
		a.dir = dir
	}
}

// WithRoot treats the directory as a root holding repository directories.
func WithRoot(root bool) Option {
	return func(a *application) {
		a.root = root
	}
}

// WithAssumeYes accepts the structure check and repository creation
// without asking.
func WithAssumeYes(yes bool) Option {
	return func(a *application) {
		a.yes = yes
	}
}

// WithIO replaces the operator's terminal.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *application) {
		a.in, a.out = in, out
	}
}

// WithLogOutput sets where log records are written.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
