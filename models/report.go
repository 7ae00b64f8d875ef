package models

import "time"

// ConsolidationReport summarizes one extraction and consolidation run.
type ConsolidationReport struct {
	ArchivesFound     int
	ArchivesExtracted int
	ArchivesErrored   int

	FilesFound     int
	FilesProcessed int
	FilesErrored   int

	RowsConsolidated  int
	RowsFinal         int
	RowsDropped       int
	DuplicatesRemoved int

	UniqueStations int
	PeriodStart    string
	PeriodEnd      string
	HourLabels     map[string]int

	OutputPath string
}

// LoadReport summarizes one database load. The estimate fields come from a
// sample and are never reconciled with the authoritative row-count delta.
type LoadReport struct {
	RunID  string
	Table  string
	Source string

	RowsRead     int
	RowsPrepared int
	RowsRejected int

	SampleSize        int
	SampleExisting    int
	EstimatedExisting int
	EstimatedNew      int

	CountBefore int64
	CountAfter  int64
	Inserted    int64
	Skipped     int64

	Batches        int
	FinalBatchSize int
	RowsCommitted  int
	Partial        bool
	Duration       time.Duration
}

// TableStats describes the contents of the destination table.
type TableStats struct {
	Table    string
	Rows     int64
	Stations int64
	MinDate  string
	MaxDate  string
}

// FolderStats describes the station archives stored in one destination folder.
type FolderStats struct {
	Path           string
	Files          int
	TotalBytes     int64
	UniqueStations int
}

// MegaBytes returns TotalBytes in MiB.
func (s FolderStats) MegaBytes() float64 {
	return float64(s.TotalBytes) / (1024 * 1024)
}

// ConsolidatedFileInfo is the result of checking a consolidated CSV.
type ConsolidatedFileInfo struct {
	Path        string
	Valid       bool
	Problem     string
	SizeBytes   int64
	Rows        int
	Stations    int
	PeriodStart string
	PeriodEnd   string
}

// ProcessingInfo reports what is on disk ahead of extraction and loading.
type ProcessingInfo struct {
	Folder         string
	FolderExists   bool
	Archives       int
	TempCSVFiles   int
	Consolidated   string
	ReadyToExtract bool
	ReadyToLoad    bool
}

// StationRow is one persisted row returned by a station query.
type StationRow struct {
	Station int64
	Date    string
	Hour    string
	Max     *float64
	Min     *float64
	Mean    *float64
}
