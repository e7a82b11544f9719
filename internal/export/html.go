package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.DefinitionList),
)

const htmlHead = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Physics Experiment</title>
    <style>
        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            line-height: 1.6;
            max-width: 900px;
            margin: 0 auto;
            padding: 20px;
            color: #333;
        }
        h1 {
            color: #2563eb;
            border-bottom: 3px solid #2563eb;
            padding-bottom: 10px;
        }
        h2 {
            color: #3b82f6;
            margin-top: 30px;
        }
        h3 {
            color: #60a5fa;
        }
        table {
            border-collapse: collapse;
            width: 100%;
            margin: 20px 0;
        }
        th, td {
            border: 1px solid #ddd;
            padding: 12px;
            text-align: left;
        }
        th {
            background-color: #2563eb;
            color: white;
        }
        code {
            background-color: #f3f4f6;
            padding: 2px 6px;
            border-radius: 3px;
            font-family: 'Courier New', monospace;
        }
        pre {
            background-color: #f3f4f6;
            padding: 15px;
            border-radius: 5px;
            overflow-x: auto;
        }
        blockquote {
            border-left: 4px solid #2563eb;
            padding-left: 20px;
            margin-left: 0;
            font-style: italic;
            color: #666;
        }
        img {
            max-width: 100%;
            height: auto;
            margin: 20px 0;
            border-radius: 8px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
        }
        .warning {
            background-color: #fef3c7;
            border-left: 4px solid #f59e0b;
            padding: 15px;
            margin: 20px 0;
        }
        @media print {
            body {
                max-width: 100%;
            }
        }
    </style>
</head>
<body>
`

const htmlTail = `</body>
</html>
`

// ToHTML renders a session as a single self-contained HTML report. The
// output depends only on its inputs.
func ToHTML(files map[string]string, images []string, sessionID string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(CombinedMarkdown(files, images, sessionID)), &body); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return htmlHead + body.String() + htmlTail, nil
}

// CombinedMarkdown joins the image gallery and every document, in
// canonical order, into one markdown text.
func CombinedMarkdown(files map[string]string, images []string, sessionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Physics Experiment Report - Session %s\n\n", sessionID)

	if len(images) > 0 {
		b.WriteString("## Experiment Images\n\n")
		for i, url := range images {
			fmt.Fprintf(&b, "![Experiment Image %d](%s)\n\n", i+1, url)
			fmt.Fprintf(&b, "*Image %d: [View full size](%s)*\n\n", i+1, url)
		}
		b.WriteString("---\n\n")
	}

	for _, name := range OrderedNames(files) {
		fmt.Fprintf(&b, "\n\n---\n\n# %s\n\n", HumanizeFilename(name))
		b.WriteString(files[name])
		b.WriteString("\n\n")
	}
	return b.String()
}

// HumanizeFilename turns "theory_and_background.md" into "Theory And Background".
func HumanizeFilename(name string) string {
	s := strings.ReplaceAll(strings.ReplaceAll(name, "_", " "), ".md", "")

	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
