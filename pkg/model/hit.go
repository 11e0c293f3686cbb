package model

import "time"

// Sample is one biological sample of a case as reported by the GDC files
// endpoint. Only the first aliquot of the first analyte of the first portion
// is carried, which is how the GDC indexes aliquot level MAFs.
type Sample struct {
	SampleType         string `json:"sample_type"`
	TissueType         string `json:"tissue_type"`
	AliquotSubmitterID string `json:"aliquot_submitter_id"`
}

// Hit is one MAF file row returned by a metadata query.
type Hit struct {
	FileID          string    `json:"file_id"`
	MD5Sum          string    `json:"md5sum"`
	FileSize        int64     `json:"file_size"`
	CreatedDatetime time.Time `json:"created_datetime"`
	CaseID          string    `json:"case_id"`
	ProjectID       string    `json:"project_id"`
	Samples         []Sample  `json:"samples"`
}
