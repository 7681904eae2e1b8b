package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/gunmetal-robotics/sentry/internal/db"
	"github.com/gunmetal-robotics/sentry/internal/report"
	"github.com/gunmetal-robotics/sentry/internal/security"
)

func main() {
	dbPath := flag.String("db", "sentry.db", "path to the sqlite session store")
	sessionID := flag.String("session", "", "session ID to report on (defaults to the most recent)")
	outDir := flag.String("out", ".", "output directory, must be under the working directory or temp")
	baseName := flag.String("base", "", "base filename for the artifacts (defaults to the session ID)")
	summaryOnly := flag.Bool("summary-only", false, "print the JSON summary without writing files")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("Session store %s not accessible: %v", *dbPath, err)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer database.Close()

	id := *sessionID
	if id == "" {
		sessions, err := database.ListSessions(1)
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("No sessions in the store")
		}
		id = sessions[0].SessionID
		log.Printf("Reporting on most recent session %s", id)
	}

	data, err := report.Load(database, id)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	summary := report.Summarize(data)
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode summary: %v", err)
	}
	fmt.Println(string(out))

	if *summaryOnly {
		return
	}

	if err := security.ValidateExportPath(*outDir); err != nil {
		log.Fatalf("Refusing output directory: %v", err)
	}

	base := *baseName
	if base == "" {
		base = id
	}

	htmlPath, err := report.WriteHTMLFile(data, *outDir, base)
	if err != nil {
		log.Fatalf("Failed to write report page: %v", err)
	}
	log.Printf("Wrote %s", htmlPath)

	plots, err := report.SaveSweepPlots(data, *outDir, base)
	if err != nil {
		log.Fatalf("Failed to write sweep plots: %v", err)
	}
	for _, p := range plots {
		log.Printf("Wrote %s", p)
	}
}
