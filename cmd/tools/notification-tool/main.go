// cmd/tools/notification-tool/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/engine/identity"
	"notification-engine/internal/models"
	"notification-engine/pkg/registry"
)

var registryPath string

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check-event", flag.ExitOnError)
	fpCmd := flag.NewFlagSet("fingerprint", flag.ExitOnError)

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/activity-registry.json", "Path to registry file")

	// Check command flags
	checkCmd.StringVar(&registryPath, "path", "configs/activity-registry.json", "Path to registry file")
	taskType := checkCmd.String("taskType", "submit-notification", "Task type whose input schema applies")
	eventFile := checkCmd.String("file", "", "JSON file holding the job variables")

	// Fingerprint command flags
	jobID := fpCmd.String("jobId", "", "Job id")
	keys := fpCmd.String("keys", "", "Comma separated raw recipient keys (e.g. u1,staff:s1)")
	eventType := fpCmd.String("eventType", "", "Event type (e.g. assigned)")
	occurredAt := fpCmd.String("occurredAt", "", "RFC 3339 occurrence time (default now)")
	window := fpCmd.Duration("window", 5*time.Minute, "Dedup window")
	precedence := fpCmd.String("precedence", "account,staff,assignment", "Identity kinds, most authoritative first")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = validateRegistry()
		if err == nil {
			fmt.Println("Registry validation passed.")
		}

	case "check-event":
		checkCmd.Parse(os.Args[2:])
		if *eventFile == "" {
			fmt.Println("Error: -file is required for check-event.")
			checkCmd.Usage()
			os.Exit(1)
		}
		err = checkEvent(*taskType, *eventFile)

	case "fingerprint":
		fpCmd.Parse(os.Args[2:])
		if *jobID == "" || *keys == "" || *eventType == "" {
			fmt.Println("Error: jobId, keys, and eventType are required for fingerprint.")
			fpCmd.Usage()
			os.Exit(1)
		}
		err = printFingerprint(*jobID, *keys, *eventType, *occurredAt, *window, *precedence)

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// validateRegistry checks the registry structure, that every declared error code is one the
// worker can raise and that every input schema compiles.
func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	known := make(map[string]bool, len(errors.BPMNErrorMapping))
	for _, code := range errors.BPMNErrorMapping {
		known[code] = true
	}
	if err := reg.Validate(known); err != nil {
		return err
	}

	for _, activity := range reg.Activities {
		if len(activity.InputSchema) == 0 {
			continue
		}
		if _, err := validation.Compile(activity.InputSchema); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}
	}

	fmt.Printf("Found %d activities.\n", len(reg.Activities))
	return nil
}

func checkEvent(taskType, path string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	activity, ok := reg.FindByTaskType(taskType)
	if !ok {
		return fmt.Errorf("no activity for task type %s", taskType)
	}
	schema, err := validation.Compile(activity.InputSchema)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	res := schema.ValidateInput(input)
	if !res.Valid {
		for _, msg := range res.GetErrorMessages() {
			fmt.Println("  -", msg)
		}
		return fmt.Errorf("%s does not match the %s input schema", path, taskType)
	}
	fmt.Printf("%s is a valid %s input.\n", path, taskType)
	return nil
}

// printFingerprint resolves the recipient the way the engine does and prints the dedup key, for
// use with GET /v1/dedup/{fingerprint}.
func printFingerprint(jobID, keys, eventType, occurredAt string, window time.Duration, precedence string) error {
	resolver, err := identity.NewResolver(identity.Options{Precedence: strings.Split(precedence, ",")})
	if err != nil {
		return err
	}
	recipient, err := resolver.Resolve(strings.Split(keys, ","))
	if err != nil {
		return err
	}

	at := time.Now()
	if occurredAt != "" {
		if at, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
			return fmt.Errorf("invalid occurredAt: %w", err)
		}
	}

	builder, err := fingerprint.NewBuilder(window)
	if err != nil {
		return err
	}
	fp := builder.Build(jobID, recipient.RecipientID, models.EventType(eventType), at)

	fmt.Printf("recipient:   %s (%s)\n", recipient.RecipientID, recipient.Kind)
	fmt.Printf("bucket:      %s\n", builder.Bucket(at).Format(time.RFC3339))
	fmt.Printf("fingerprint: %s\n", fp)
	return nil
}

func help() {
	fmt.Print(`
Usage: notification-tool <command> [flags]

Commands:
  validate     Validate the activity registry and its schemas
  check-event  Validate job variables against a task type's input schema
  fingerprint  Print the dedup fingerprint of an event
  help         Show this help message

Examples:
  notification-tool validate -path configs/activity-registry.json
  notification-tool check-event -taskType submit-notification -file event.json
  notification-tool fingerprint -jobId J1 -keys u1,staff:s1 -eventType assigned -occurredAt 2026-03-02T08:00:00Z

Use 'notification-tool <command> -h' for more information about a command.
`)
}
