package reconcile

import (
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/starford/bc2as/internal/storage"
)

// ErrEmptyTree is returned by Survey when no dataset directory was found.
var ErrEmptyTree = errors.New("no datasets found")

// Tree is the local repository/project/dataset layout shown to the operator
// before anything is sent.
type Tree struct {
	Repositories []RepositoryNode
}

// RepositoryNode is one repository directory.
type RepositoryNode struct {
	Dir      string
	Projects []ProjectNode
}

// ProjectNode is one project directory with its dataset directory names.
type ProjectNode struct {
	Name     string
	Datasets []string
}

// Datasets returns the total number of dataset directories.
func (t *Tree) Datasets() int {
	n := 0
	for _, repo := range t.Repositories {
		for _, p := range repo.Projects {
			n += len(p.Datasets)
		}
	}
	return n
}

// Paths returns every dataset as a repo/project/dataset slash path.
func (t *Tree) Paths() []string {
	var out []string
	for _, repo := range t.Repositories {
		for _, p := range repo.Projects {
			for _, ds := range p.Datasets {
				out = append(out, path.Join(repo.Dir, p.Name, ds))
			}
		}
	}
	return out
}

// Survey walks the repository directories in repoDirs (relative to store).
func Survey(store storage.Provider, repoDirs []string, exclude []string) (*Tree, error) {
	t := &Tree{}
	for _, dir := range repoDirs {
		projects, err := store.Subdirectories(dir, exclude)
		if err != nil {
			return nil, fmt.Errorf("reconcile: survey %s: %w", dir, err)
		}
		node := RepositoryNode{Dir: dir}
		for _, project := range projects {
			datasets, err := store.Subdirectories(path.Join(dir, project), exclude)
			if err != nil {
				return nil, fmt.Errorf("reconcile: survey %s: %w", project, err)
			}
			node.Projects = append(node.Projects, ProjectNode{Name: project, Datasets: datasets})
		}
		t.Repositories = append(t.Repositories, node)
	}
	if t.Datasets() == 0 {
		return t, ErrEmptyTree
	}
	return t, nil
}

// Render writes an indented outline of the tree.
func (t *Tree) Render(w io.Writer) {
	for _, repo := range t.Repositories {
		fmt.Fprintf(w, "Repository %s\n", path.Base(repo.Dir))
		for _, p := range repo.Projects {
			fmt.Fprintf(w, "  Project %s (ref_id %s, %d datasets)\n", p.Name, RefID(p.Name), len(p.Datasets))
			for _, ds := range p.Datasets {
				fmt.Fprintf(w, "    %s\n", ds)
			}
		}
	}
}
