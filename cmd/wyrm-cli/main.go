package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	wyrm "github.com/goliatone/go-wyrm"
)

func main() {
	template := flag.String("template", "", "template name to render (without extension)")
	dirs := flag.String("dirs", "templates", "comma-separated template search directories")
	output := flag.String("output", "", "output file (stdout if empty)")
	configPath := flag.String("config", "", "optional YAML configuration file")
	vars := varFlags{}
	flag.Var(&vars, "var", "template variable as name=value (repeatable)")
	flag.Parse()

	cfg := wyrm.DefaultConfig()
	if *configPath != "" {
		loaded, err := wyrm.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if len(cfg.SearchDirs) == 0 {
		cfg.SearchDirs = strings.Split(*dirs, ",")
	}

	name := *template
	if name == "" {
		prompt := &survey.Input{Message: "Template to render:"}
		if err := survey.AskOne(prompt, &name, survey.WithValidator(survey.Required)); err != nil {
			log.Fatalf("No template selected: %v", err)
		}
	}

	eng, err := wyrm.New(wyrm.WithConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to configure engine: %v", err)
	}

	out, err := eng.RenderFile(context.Background(), name, vars.values)
	if err != nil {
		log.Fatalf("Failed to render template: %v", err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		fmt.Printf("Rendered %s to %s\n", name, *output)
	} else {
		fmt.Println(out)
	}
}

// varFlags collects repeated -var name=value flags into a wyrm.Vars map.
type varFlags struct {
	values wyrm.Vars
}

func (v *varFlags) String() string { return "" }

func (v *varFlags) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	if v.values == nil {
		v.values = wyrm.Vars{}
	}
	v.values[name] = value
	return nil
}
