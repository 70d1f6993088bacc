// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
	"github.com/AleutianAI/AleutianInsight/services/insight/parser"
	"github.com/AleutianAI/AleutianInsight/services/insight/validator"
)

// runValidateCommand parses and validates a document file, printing the
// findings. Exit code 1 on parse failure or blocking validation errors.
func runValidateCommand(cmd *cobra.Command, args []string) {
	text, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading document: %v\n", err)
		os.Exit(1)
	}

	doc, err := parser.Parse(string(text))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse error: %v\n", err)
		os.Exit(1)
	}

	datasets, err := loadDatasetStore(datasetsPath, localUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result := validator.New(datasets).Validate(context.Background(), doc, localUser)

	if jsonOutput {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else {
		printValidation(doc, result)
	}

	if result.Blocking() {
		os.Exit(1)
	}
}

func printValidation(doc *contextdoc.ContextDocument, result contextdoc.ValidationResult) {
	fmt.Printf("%s v%s: %s\n", doc.Name, doc.Version, result.Status)
	for _, issue := range result.Errors {
		if issue.Location != "" {
			fmt.Printf("  error   %-28s %s (%s)\n", issue.Code, issue.Message, issue.Location)
		} else {
			fmt.Printf("  error   %-28s %s\n", issue.Code, issue.Message)
		}
	}
	for _, issue := range result.Warnings {
		if issue.Location != "" {
			fmt.Printf("  warning %-28s %s (%s)\n", issue.Code, issue.Message, issue.Location)
		} else {
			fmt.Printf("  warning %-28s %s\n", issue.Code, issue.Message)
		}
	}
}
