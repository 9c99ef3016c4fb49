/*
Copyright © 2024 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/blacktop/retrobuffer/internal/rewrite"
	"github.com/blacktop/retrobuffer/internal/utils"
)

var (
	colorClass  = color.New(color.Bold).SprintFunc()
	colorMethod = color.New(color.FgHiBlue).SprintFunc()
	colorFrom   = color.New(color.FgRed).SprintFunc()
	colorTo     = color.New(color.FgGreen).SprintFunc()
	colorFaint  = color.New(color.Faint).SprintFunc()
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("no-color", false, "Disable colorized output")
	scanCmd.Flags().StringP("format", "f", "text", "Output format (text, yaml)")
	viper.BindPFlag("scan.no-color", scanCmd.Flags().Lookup("no-color"))
	viper.BindPFlag("scan.format", scanCmd.Flags().Lookup("format"))
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the calls a run would rewrite without writing anything",
	Example: heredoc.Doc(`
		❯ retrobuffer scan --input-dir build/classes
		com/example/Reader.read(Ljava/nio/ByteBuffer;)V: java/nio/ByteBuffer.flip ()Ljava/nio/ByteBuffer; -> java/nio/Buffer.flip ()Ljava/nio/Buffer;
		# Machine readable report
		❯ retrobuffer scan --input-dir build/classes --format yaml`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := viper.GetString("scan.format")
		if format != "text" && format != "yaml" {
			return errors.Errorf("unsupported output format %q", format)
		}
		if viper.GetBool("scan.no-color") {
			color.NoColor = true
		}
		// the classpath only sharpens merged frame types, which scan never writes
		if !viper.IsSet("classpath") && !viper.IsSet("classpathFile") {
			viper.Set("classpath", "")
		}
		ctx, err := execute(true)
		if err != nil {
			return err
		}
		if format == "yaml" {
			return writeYAML(os.Stdout, ctx.Reports())
		}
		printReports(os.Stdout, ctx.Reports())
		return nil
	},
}

func printReports(w io.Writer, reports []*rewrite.Report) {
	sites := 0
	for _, r := range reports {
		for _, s := range r.Sites {
			fmt.Fprintf(w, "%s.%s: %s -> %s\n", colorClass(r.Class), colorMethod(s.Method), colorFrom(s.From), colorTo(s.To))
			sites++
		}
	}
	fmt.Fprintln(w, colorFaint(fmt.Sprintf("%d call %s in %d %s",
		sites, utils.Plural(int64(sites), "site", "sites"),
		len(reports), utils.Plural(int64(len(reports)), "class", "classes"))))
}

type yamlSite struct {
	Method string `yaml:"method"`
	PC     int    `yaml:"pc"`
	Rule   string `yaml:"rule"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

type yamlReport struct {
	Class string     `yaml:"class"`
	Sites []yamlSite `yaml:"sites"`
}

func writeYAML(w io.Writer, reports []*rewrite.Report) error {
	out := make([]yamlReport, 0, len(reports))
	for _, r := range reports {
		yr := yamlReport{Class: r.Class}
		for _, s := range r.Sites {
			yr.Sites = append(yr.Sites, yamlSite{
				Method: s.Method,
				PC:     s.PC,
				Rule:   s.Rule,
				From:   s.From.String(),
				To:     s.To.String(),
			})
		}
		out = append(out, yr)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	return enc.Close()
}
