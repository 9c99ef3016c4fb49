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
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blacktop/retrobuffer/internal/errs"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
	// AppVersion stores the plugin's version
	AppVersion string
	// AppBuildTime stores the plugin's build time
	AppBuildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "retrobuffer",
	Short: "Backport java.nio.Buffer calls in compiled classes to Java 8",
	Long: heredoc.Doc(`
		Classes compiled by JDK 9+ against the Java 8 API still call the covariant
		overrides ByteBuffer.flip(), CharBuffer.position(int) and friends, which do not
		exist on a Java 8 runtime and fail with NoSuchMethodError.

		retrobuffer rewrites those calls to the java.nio.Buffer methods every runtime
		has, recomputes the verifier metadata of the methods it changes and copies
		everything else through untouched.`),
	Example: heredoc.Doc(`
		# Rewrite a compiled classes directory in place
		❯ retrobuffer --input-dir build/classes/java/main --classpath "$ANDROID_HOME/platforms/android-34/android.jar"
		# Write to a separate directory using 4 workers
		❯ retrobuffer run --input-dir classes --output-dir classes-java8 --classpath-file cp.txt -j 4`),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runE(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = AppVersion
	if err := rootCmd.Execute(); err != nil {
		log.WithField("kind", errs.Kind(err)).Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	// Flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/retrobuffer/config.yaml)")
	pf.BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	pf.String("input-dir", "", "Directory of compiled classes to rewrite")
	pf.String("output-dir", "", "Directory to write to (default is --input-dir)")
	pf.String("classpath", "", "Directories and jars the input was compiled against ("+string(os.PathListSeparator)+" separated)")
	pf.String("classpath-file", "", "File listing classpath entries, one per line")
	pf.IntP("jobs", "j", 0, "Number of classes to rewrite in parallel (default is the number of CPUs)")
	pf.Int("max-class-version", 0, "Newest class file major version to accept (default is the newest supported)")
	pf.Bool("trace", false, "Export OpenTelemetry traces of the run")
	pf.String("trace-endpoint", "", "OTLP/HTTP collector address (default is localhost:4318)")
	pf.DurationP("timeout", "t", 0, "Abort the run after this long")
	rootCmd.MarkFlagsMutuallyExclusive("classpath", "classpath-file")
	bindFlags(pf)
	// Settings
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// bindFlags binds the persistent flags to their configuration keys.
func bindFlags(pf *pflag.FlagSet) {
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
	viper.BindPFlag("inputDir", pf.Lookup("input-dir"))
	viper.BindPFlag("outputDir", pf.Lookup("output-dir"))
	viper.BindPFlag("classpath", pf.Lookup("classpath"))
	viper.BindPFlag("classpathFile", pf.Lookup("classpath-file"))
	viper.BindPFlag("jobs", pf.Lookup("jobs"))
	viper.BindPFlag("maxClassVersion", pf.Lookup("max-class-version"))
	viper.BindPFlag("timeout", pf.Lookup("timeout"))
	viper.BindPFlag("telemetry.enabled", pf.Lookup("trace"))
	viper.BindPFlag("telemetry.endpoint", pf.Lookup("trace-endpoint"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "retrobuffer"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("retrobuffer")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
