package commands

import (
	"fmt"
	"strings"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/output"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
)

// Result formats accepted by --format.
const (
	FormatTable    = "table"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatHTML     = "html"
)

var formats = []string{FormatTable, FormatCSV, FormatMarkdown, FormatJSON, FormatHTML}

func validateFormat(format string) error {
	for _, f := range formats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (want %s)", format, strings.Join(formats, ", "))
}

// renderResult writes res to the renderer in the requested format. Text and
// empty results are shown as-is whatever the format, except JSON which
// always emits an array.
func renderResult(r *output.Renderer, res present.Result, format string) error {
	w := r.Writer()
	if format == FormatJSON {
		return res.JSON(w)
	}

	switch res.Kind {
	case present.KindEmpty:
		r.Success(present.EmptyMessage)
		return nil
	case present.KindText:
		r.Println(res.Raw)
		return nil
	}

	switch format {
	case FormatCSV:
		b, err := res.CSV()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case FormatMarkdown:
		r.Println(res.Markdown())
	case FormatHTML:
		r.Println(res.HTML())
	default:
		if err := res.WriteText(w); err != nil {
			return err
		}
	}
	return nil
}
