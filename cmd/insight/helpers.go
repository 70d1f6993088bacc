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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
)

// datasetCatalog is the YAML shape of a local dataset schema file:
//
//	datasets:
//	  - dataset_id: sales_orders
//	    name: Orders
//	    row_estimate: 250000
//	    columns:
//	      - name: id
//	        type: int
//	      - name: amount
//	        type: decimal
type datasetCatalog struct {
	Datasets []struct {
		DatasetID   string              `yaml:"dataset_id"`
		Name        string              `yaml:"name"`
		RowEstimate int64               `yaml:"row_estimate"`
		Columns     []contextdoc.Column `yaml:"columns"`
	} `yaml:"datasets"`
}

// loadDatasetStore builds an in-memory dataset store from a schema file.
// An empty path yields an empty store; semantic validation then reports
// every dataset reference as missing, which is still useful for checking
// document structure offline.
func loadDatasetStore(path, userID string) (*store.MemoryDatasetStore, error) {
	datasets := store.NewMemoryDatasetStore()
	if path == "" {
		return datasets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset schema file: %w", err)
	}
	var catalog datasetCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse dataset schema file: %w", err)
	}

	for _, ds := range catalog.Datasets {
		datasets.AddSchema(userID, &store.DatasetSchema{
			DatasetID:   ds.DatasetID,
			Name:        ds.Name,
			Columns:     ds.Columns,
			RowEstimate: ds.RowEstimate,
		})
	}
	return datasets, nil
}

// localUser is the identity used for all offline CLI operations.
const localUser = "local-user"
