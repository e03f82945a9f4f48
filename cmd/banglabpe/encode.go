package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/go-bangla-bpe/internal/text"
	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

const (
	formatText  = "text"
	formatJSON  = "json"
	formatTable = "table"
)

type encodeOptions struct {
	File   string
	Raw    bool
	Format string
	Split  string
	Lines  bool
}

func newEncodeCmd() *cobra.Command {
	var opts encodeOptions

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Tokenize Bengali text into BPE subwords and vocabulary ids",
		Long: `Tokenize text given as arguments, read from --file, or piped on stdin.
When stdin is a terminal and no text is given, encode line by line interactively.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			switch opts.Format {
			case formatText, formatJSON, formatTable:
			default:
				return fmt.Errorf("--format must be 'text', 'json' or 'table'")
			}

			split := opts.Split
			if opts.Lines {
				split = string(text.SplitLines)
			}
			mode, err := text.ParseSplitMode(split)
			if err != nil {
				return err
			}

			form, err := text.ParseForm(cfg.Encode.Normalization)
			if err != nil {
				return err
			}

			tok, err := loadTokenizer(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			e := &encoder{
				tok:    tok,
				form:   form,
				mode:   mode,
				hide:   cfg.Encode.HideEndMarker && !opts.Raw,
				format: opts.Format,
				out:    cmd.OutOrStdout(),
			}

			input, interactive, err := readInput(cmd.InOrStdin(), args, opts.File)
			if err != nil {
				return err
			}
			if interactive {
				return e.interactive(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr())
			}

			return e.run(cmd.Context(), input)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read text from this file ('-' for stdin)")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Show raw tokens including the </w> end-of-word marker")
	cmd.Flags().StringVar(&opts.Format, "format", formatText, "Output format: text|json|table")
	cmd.Flags().StringVar(&opts.Split, "split", string(text.SplitNone), "Encode pieces separately: none|lines|sentences")
	cmd.Flags().BoolVar(&opts.Lines, "lines", false, "Shorthand for --split=lines")

	return cmd
}

// readInput resolves the text to encode. interactive is true when nothing was
// given and stdin is a terminal.
func readInput(stdin io.Reader, args []string, file string) (string, bool, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), false, nil
	case file != "" && file != "-":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", false, fmt.Errorf("read input file: %w", err)
		}
		return string(b), false, nil
	case file == "" && isTerminal(stdin):
		return "", true, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", false, fmt.Errorf("read stdin: %w", err)
	}
	return string(b), false, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type encoder struct {
	tok    *tokenizer.BPETokenizer
	form   text.Form
	mode   text.SplitMode
	hide   bool
	format string
	out    io.Writer
}

type encodedPiece struct {
	Text          string   `json:"text"`
	Tokens        []string `json:"tokens"`
	DisplayTokens []string `json:"display_tokens"`
	IDs           []int    `json:"ids"`
	Unknown       int      `json:"unknown"`
}

func (e *encoder) run(ctx context.Context, input string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	input = text.ApplyForm(input, e.form)

	pieces := text.Split(input, e.mode, 0)
	if len(pieces) == 0 {
		return text.ErrEmptyText
	}

	encs, err := e.tok.EncodeBatch(ctx, pieces)
	if err != nil {
		return err
	}

	results := make([]encodedPiece, len(encs))
	for i, enc := range encs {
		results[i] = encodedPiece{
			Text:          pieces[i],
			Tokens:        enc.Tokens,
			DisplayTokens: enc.Display(e.hide),
			IDs:           enc.IDs,
			Unknown:       enc.Unknown(),
		}
	}

	return e.write(results)
}

func (e *encoder) write(results []encodedPiece) error {
	switch e.format {
	case formatJSON:
		enc := json.NewEncoder(e.out)
		enc.SetEscapeHTML(false)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("write json: %w", err)
			}
		}
		return nil
	case formatTable:
		writeTokenTable(e.out, results)
		return nil
	}

	for i, r := range results {
		if len(results) > 1 {
			if i > 0 {
				_, _ = fmt.Fprintln(e.out)
			}
			_, _ = fmt.Fprintf(e.out, "Text:   %s\n", r.Text)
		}
		_, _ = fmt.Fprintf(e.out, "Tokens: %s\n", strings.Join(r.DisplayTokens, " "))
		_, _ = fmt.Fprintf(e.out, "IDs:    %s\n", joinInts(r.IDs))
	}
	return nil
}

func writeTokenTable(w io.Writer, results []encodedPiece) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Piece", "Pos", "Token", "ID"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for i, r := range results {
		for j, tok := range r.DisplayTokens {
			table.Append([]string{
				strconv.Itoa(i + 1),
				strconv.Itoa(j + 1),
				tok,
				strconv.Itoa(r.IDs[j]),
			})
		}
	}

	table.Render()
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

// interactive encodes one line at a time until EOF. Blank lines are skipped.
func (e *encoder) interactive(ctx context.Context, in io.Reader, prompt io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		_, _ = fmt.Fprint(prompt, "> ")
		if !sc.Scan() {
			_, _ = fmt.Fprintln(prompt)
			return sc.Err()
		}

		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := e.run(ctx, line); err != nil && !errors.Is(err, text.ErrEmptyText) {
			return err
		}
	}
}
