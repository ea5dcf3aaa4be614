package output

import (
	"fmt"
	"io"
	"strings"
)

func writeHTML(w io.Writer, doc Document) error {
	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; color: #1A1A1A; background: #F5F5F5; margin: 2em; }
h1 { font-size: 18px; font-weight: 600; margin-bottom: 0.5em; }
table { border-collapse: collapse; margin: 0.5em 0; }
th, td { text-align: left; padding: 3px 12px 3px 0; font-size: 13px; }
th { font-weight: 600; border-bottom: 1px solid #ddd; }
td { font-family: "Courier New", monospace; }
</style>
</head>
<body>
`, htmlEscape(doc.Title))

	fmt.Fprintf(&b, "<h1>%s</h1>\n", htmlEscape(doc.Title))
	b.WriteString("<table>\n<tr>")
	for _, h := range doc.Header {
		fmt.Fprintf(&b, "<th>%s</th>", htmlEscape(h))
	}
	b.WriteString("</tr>\n")
	for _, row := range doc.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", htmlEscape(cell))
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n</body>\n</html>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
