package metadata

import (
	"fmt"
	"os"

	"github.com/barasher/go-exiftool"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

// Info describes a PDF document without touching its content.
type Info struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	PageCount int    `json:"page_count"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Producer  string `json:"producer,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Encrypted bool   `json:"encrypted"`
}

// Inspector reads document metadata, preferring exiftool when it is
// installed and falling back to pdfcpu's page count otherwise.
type Inspector struct {
	log *logrus.Logger
}

// NewInspector creates a metadata inspector.
func NewInspector(log *logrus.Logger) *Inspector {
	return &Inspector{log: log}
}

// Inspect returns metadata for the PDF at path.
func (i *Inspector) Inspect(path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	info := &Info{Path: path, Size: stat.Size()}

	if err := i.fillFromExiftool(info); err != nil {
		i.log.Debugf("exiftool unavailable, using pdfcpu only: %v", err)
	}

	if info.PageCount == 0 {
		pages, err := api.PageCountFile(path)
		if err != nil {
			return nil, fmt.Errorf("page count for %s: %w", path, err)
		}
		info.PageCount = pages
	}

	return info, nil
}

func (i *Inspector) fillFromExiftool(info *Info) error {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return err
	}
	defer et.Close()

	files := et.ExtractMetadata(info.Path)
	if len(files) == 0 {
		return fmt.Errorf("exiftool returned no metadata")
	}
	if files[0].Err != nil {
		return files[0].Err
	}

	fields := files[0].Fields
	info.Title = stringField(fields, "Title")
	info.Author = stringField(fields, "Author")
	info.Producer = stringField(fields, "Producer")
	info.Creator = stringField(fields, "Creator")
	if enc := stringField(fields, "Encryption"); enc != "" {
		info.Encrypted = true
	}
	if pc, ok := fields["PageCount"]; ok {
		switch v := pc.(type) {
		case float64:
			info.PageCount = int(v)
		case int:
			info.PageCount = v
		}
	}
	return nil
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
