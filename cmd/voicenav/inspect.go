package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roelfdiedericks/voicenav/internal/actions"
	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/pagecontext"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
)

type InspectCmd struct {
	File  string `arg:"" type:"existingfile" help:"Saved HTML page"`
	URL   string `help:"URL the page was saved from (default: file:// path)"`
	Level string `default:"standard" enum:"minimal,standard,detailed" help:"Detail level"`
	Click string `help:"Click the element best matching this text first"`
	Call  string `help:"Run this function first, e.g. fill_field"`
	Args  string `help:"JSON parameters for --call"`
}

func (c *InspectCmd) Run(g *Globals) error {
	if _, _, err := g.load(); err != nil {
		return err
	}
	src, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	pageURL := c.URL
	if pageURL == "" {
		abs, _ := filepath.Abs(c.File)
		pageURL = "file://" + filepath.ToSlash(abs)
	}
	return c.inspect(context.Background(), string(src), pageURL, os.Stdout)
}

// inspect runs the optional commands against an in-memory page and writes
// the resulting page context as JSON
func (c *InspectCmd) inspect(ctx context.Context, src, pageURL string, w io.Writer) error {
	page, err := dom.NewStaticPage(src, pageURL)
	if err != nil {
		return fmt.Errorf("parse %s: %w", c.File, err)
	}
	exec := actions.NewExecutor(page,
		actions.WithSettleDelay(0),
		actions.WithExtractor(&pagecontext.Extractor{Article: true}),
	)

	var cmds []protocol.Command
	if c.Click != "" {
		cmds = append(cmds, protocol.ClickElement{TargetText: c.Click})
	}
	if c.Call != "" {
		params := map[string]any{}
		if c.Args != "" {
			if err := json.Unmarshal([]byte(c.Args), &params); err != nil {
				return fmt.Errorf("--args: %w", err)
			}
		}
		cmd, err := protocol.ParseCommand(c.Call, params)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}

	report := struct {
		Actions []actionReport        `json:"actions,omitempty"`
		Context *pagecontext.Snapshot `json:"context"`
	}{}
	for _, cmd := range cmds {
		out := exec.Execute(ctx, cmd)
		report.Actions = append(report.Actions, actionReport{
			Function: cmd.Function(),
			Success:  out.Success,
			Message:  out.Message,
			Error:    out.Error(),
		})
	}

	out := exec.Execute(ctx, protocol.GetPageContext{DetailLevel: protocol.ParseDetailLevel(c.Level)})
	if !out.Success {
		return out.Err
	}
	report.Context, _ = out.Result.(*pagecontext.Snapshot)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

type actionReport struct {
	Function protocol.FunctionName `json:"function"`
	Success  bool                  `json:"success"`
	Message  string                `json:"message,omitempty"`
	Error    string                `json:"error,omitempty"`
}
