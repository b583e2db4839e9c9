package pdf

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var configOnce sync.Once

// pdfcpuConfig returns a relaxed-validation configuration. pdfcpu would
// otherwise create a config directory under the user's home on first use.
func pdfcpuConfig() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount parses content and returns its number of pages.
func PageCount(content []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(content), pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// Optimize rewrites content with shared resources deduplicated. The input is
// returned unchanged when optimizing would not make it smaller.
func Optimize(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(content), &buf, pdfcpuConfig()); err != nil {
		return nil, fmt.Errorf("optimize pdf: %w", err)
	}
	if buf.Len() == 0 || buf.Len() >= len(content) {
		return content, nil
	}
	return buf.Bytes(), nil
}
