package report

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/starford/bc2as/internal/storage"
)

// FileObject is a normalized DFXML fileobject. MTime is empty when the
// fileobject carries no modification time.
type FileObject struct {
	Filename string
	MTime    string
}

// dfxmlDoc covers both shapes fiwalk and friends emit: fileobjects grouped
// under one or more volumes (disk images) or listed directly under the root
// (directory walks).
type dfxmlDoc struct {
	XMLName     xml.Name          `xml:"dfxml"`
	Volumes     []dfxmlVolume     `xml:"volume"`
	FileObjects []dfxmlFileObject `xml:"fileobject"`
}

type dfxmlVolume struct {
	FileObjects []dfxmlFileObject `xml:"fileobject"`
}

type dfxmlFileObject struct {
	Filename string          `xml:"filename"`
	MTime    *dfxmlTimestamp `xml:"mtime"`
}

// dfxmlTimestamp holds the element text whether or not the element carries
// attributes such as prec.
type dfxmlTimestamp struct {
	Text string `xml:",chardata"`
}

// LoadDetailedMetadata parses dfxml.xml for the dataset. A missing file is
// not an error: ok is false.
func LoadDetailedMetadata(store storage.Provider, datasetDir string) (objects []FileObject, ok bool, err error) {
	p := path.Join(datasetDir, DFXMLFile)
	exists, err := store.Exists(p)
	if err != nil || !exists {
		return nil, false, err
	}
	rc, err := store.Open(p)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	var doc dfxmlDoc
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("report: %s: decode: %w", p, err)
	}

	for _, v := range doc.Volumes {
		objects = appendFileObjects(objects, v.FileObjects)
	}
	objects = appendFileObjects(objects, doc.FileObjects)
	return objects, true, nil
}

func appendFileObjects(dst []FileObject, src []dfxmlFileObject) []FileObject {
	for _, fo := range src {
		obj := FileObject{Filename: strings.TrimSpace(fo.Filename)}
		if fo.MTime != nil {
			obj.MTime = strings.TrimSpace(fo.MTime.Text)
		}
		dst = append(dst, obj)
	}
	return dst
}
