// Command rowflow loads a CSV file into a SQL table through a configured
// chain of row operations.
//
//	rowflow -config ./orders.yaml
//
// Configuration comes from the YAML file, an optional .env file and
// ROWFLOW_* environment variables, in that order of precedence. The
// process exits non-zero when the run recorded an error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/rowflow/config"
	"github.com/kbukum/rowflow/version"
)

func main() {
	name := flag.String("name", "rowflow", "Job name used to locate config files")
	configFile := flag.String("config", "", "Path to configuration file")
	envFile := flag.String("env", "", "Path to .env file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rowflow " + version.Full())
		return
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}

	cfg, err := config.Load[JobConfig](*name, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rowflow: loading config: %v\n", err)
		os.Exit(2)
	}

	job, err := NewJob(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rowflow: %v\n", err)
		os.Exit(2)
	}
	if _, err := job.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rowflow: %v\n", err)
		os.Exit(1)
	}
}
