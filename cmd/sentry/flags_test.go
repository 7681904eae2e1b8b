package main

import (
	"flag"
	"testing"
)

// TestFlagDefaults verifies the service flags exist and carry the deployed
// defaults.
func TestFlagDefaults(t *testing.T) {
	if *devMode != false {
		t.Errorf("expected dev default to be false, got %v", *devMode)
	}
	if *statusUnits != "ticks" {
		t.Errorf("expected units default to be ticks, got %q", *statusUnits)
	}
	if *migrationsDir != "migrations" {
		t.Errorf("expected migrations default to be migrations, got %q", *migrationsDir)
	}
	if *noRecord != false {
		t.Errorf("expected no-record default to be false, got %v", *noRecord)
	}
	if *configPath != "" {
		t.Errorf("expected config default to be empty, got %q", *configPath)
	}
}

// TestOverrideFlagsDefaultEmpty verifies the config-override flags default to
// empty so an unset flag never shadows a config file value.
func TestOverrideFlagsDefaultEmpty(t *testing.T) {
	for name, f := range map[string]*string{
		"listen": listen,
		"port":   serialPort,
		"db":     dbFile,
		"color":  targetColor,
	} {
		if *f != "" {
			t.Errorf("expected -%s default to be empty, got %q", name, *f)
		}
	}
}

// TestMigrateFlagParsing verifies the migrate flag set accepts its flags
// after the verb, the way the command line is documented.
func TestMigrateFlagParsing(t *testing.T) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "sentry.db", "SQLite session store path")
	forceVersion := fs.Int("force-version", -1, "Schema version to pin")

	if err := fs.Parse([]string{"-db", "/tmp/x.db", "-force-version", "2"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	if *dbPath != "/tmp/x.db" {
		t.Errorf("db = %q, want /tmp/x.db", *dbPath)
	}
	if *forceVersion != 2 {
		t.Errorf("force-version = %d, want 2", *forceVersion)
	}
}
