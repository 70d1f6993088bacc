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

	"github.com/AleutianAI/AleutianInsight/services/insight"
	"github.com/AleutianAI/AleutianInsight/services/insight/cache"
	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
	"github.com/AleutianAI/AleutianInsight/services/insight/parser"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
)

// runExplainCommand compiles a query against a document file and prints
// the plan without executing anything.
func runExplainCommand(cmd *cobra.Command, args []string) {
	text, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading document: %v\n", err)
		os.Exit(1)
	}
	queryData, err := os.ReadFile(queryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading query file: %v\n", err)
		os.Exit(1)
	}
	var query contextdoc.QueryRequest
	if err := json.Unmarshal(queryData, &query); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing query file: %v\n", err)
		os.Exit(1)
	}

	doc, err := parser.Parse(string(text))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse error: %v\n", err)
		os.Exit(1)
	}
	doc.ID = "local"

	datasets, err := loadDatasetStore(datasetsPath, localUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	results, err := cache.OpenInMemory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer results.Close()

	ctx := context.Background()
	svc := insight.NewService(insight.DefaultServiceConfig(), datasets, store.NewMemoryContextRepository(), results)
	if _, _, err := svc.SaveContext(ctx, localUser, doc.ID, string(text)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	plan, err := svc.Explain(ctx, localUser, doc.ID, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(plan, "", "  ")
	fmt.Println(string(out))
}
