package gdc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/me/gdcmaf/pkg/model"
)

// Values every aliquot level MAF query is restricted to.
const (
	DataFormatMAF     = "MAF"
	DataTypeMasked    = "Masked Somatic Mutation"
	WorkflowTypeMerge = "Aliquot Ensemble Somatic Variant Merging and Masking"
)

// Fields requested for every hit.
var hitFields = []string{
	"file_id",
	"md5sum",
	"file_size",
	"created_datetime",
	"cases.case_id",
	"cases.project.project_id",
	"cases.samples.sample_type",
	"cases.samples.tissue_type",
	"cases.samples.portions.analytes.aliquots.submitter_id",
}

// Scope names what a query collects. File ids take priority over case ids,
// which take priority over the project id.
type Scope struct {
	ProjectID string
	CaseIDs   []string
	FileIDs   []string
}

// Empty reports whether the scope names nothing.
func (s Scope) Empty() bool {
	return s.ProjectID == "" && len(s.CaseIDs) == 0 && len(s.FileIDs) == 0
}

// String describes the scope for logs and run history.
func (s Scope) String() string {
	switch {
	case len(s.FileIDs) > 0:
		return fmt.Sprintf("file_ids(%d)", len(s.FileIDs))
	case len(s.CaseIDs) > 0:
		return fmt.Sprintf("case_ids(%d)", len(s.CaseIDs))
	case s.ProjectID != "":
		return "project_id=" + s.ProjectID
	}
	return "empty"
}

// Filter is a GDC filter expression.
type Filter struct {
	Op      string `json:"op"`
	Content any    `json:"content"`
}

type fieldValues struct {
	Field string   `json:"field"`
	Value []string `json:"value"`
}

func in(field string, values ...string) Filter {
	return Filter{Op: "in", Content: fieldValues{Field: field, Value: values}}
}

// BuildFilters returns the filter selecting the aliquot level MAFs of scope.
func BuildFilters(scope Scope) (Filter, error) {
	content := []Filter{
		in("files.data_format", DataFormatMAF),
		in("files.data_type", DataTypeMasked),
		in("analysis.workflow_type", WorkflowTypeMerge),
	}

	switch {
	case len(scope.FileIDs) > 0:
		content = append(content, in("files.file_id", scope.FileIDs...))
	case len(scope.CaseIDs) > 0:
		content = append(content, in("cases.case_id", scope.CaseIDs...))
	case scope.ProjectID != "":
		content = append(content, in("cases.project.project_id", scope.ProjectID))
	default:
		return Filter{}, ErrEmptyScope
	}
	return Filter{Op: "and", Content: content}, nil
}

type filesQuery struct {
	Fields  string `json:"fields"`
	Filters Filter `json:"filters"`
	From    int    `json:"from"`
	Size    int    `json:"size"`
}

type filesResponse struct {
	Data struct {
		Hits       []rawHit   `json:"hits"`
		Pagination pagination `json:"pagination"`
	} `json:"data"`
}

type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	From  int `json:"from"`
	Size  int `json:"size"`
}

type rawHit struct {
	FileID          string    `json:"file_id"`
	MD5Sum          string    `json:"md5sum"`
	FileSize        int64     `json:"file_size"`
	CreatedDatetime string    `json:"created_datetime"`
	Cases           []rawCase `json:"cases"`
}

type rawCase struct {
	CaseID  string `json:"case_id"`
	Project struct {
		ProjectID string `json:"project_id"`
	} `json:"project"`
	Samples []rawSample `json:"samples"`
}

type rawSample struct {
	SampleType string `json:"sample_type"`
	TissueType string `json:"tissue_type"`
	Portions   []struct {
		Analytes []struct {
			Aliquots []struct {
				SubmitterID string `json:"submitter_id"`
			} `json:"aliquots"`
		} `json:"analytes"`
	} `json:"portions"`
}

func (s rawSample) aliquotSubmitterID() string {
	if len(s.Portions) == 0 || len(s.Portions[0].Analytes) == 0 || len(s.Portions[0].Analytes[0].Aliquots) == 0 {
		return ""
	}
	return s.Portions[0].Analytes[0].Aliquots[0].SubmitterID
}

// Files queries every page of aliquot level MAF hits for scope.
func (c *Client) Files(ctx context.Context, scope Scope) ([]model.Hit, error) {
	filters, err := BuildFilters(scope)
	if err != nil {
		return nil, err
	}

	query := filesQuery{
		Fields:  strings.Join(hitFields, ","),
		Filters: filters,
		From:    0,
		Size:    c.config.PageSize,
	}

	var hits []model.Hit
	for {
		var resp filesResponse
		if err := c.postJSON(ctx, "files", "/files", query, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Data.Hits {
			hit, err := parseHit(raw)
			if err != nil {
				return nil, &Error{Op: "files", Err: err}
			}
			hits = append(hits, hit)
		}

		p := resp.Data.Pagination
		c.logger.Debug("files page", "page", p.Page, "pages", p.Pages, "hits", len(resp.Data.Hits))
		if p.Page >= p.Pages || len(resp.Data.Hits) == 0 {
			break
		}
		query.From += c.config.PageSize
	}

	c.logger.Info("metadata query complete", "scope", scope.String(), "hits", len(hits))
	return hits, nil
}

func parseHit(raw rawHit) (model.Hit, error) {
	if raw.FileID == "" {
		return model.Hit{}, fmt.Errorf("hit without file_id")
	}
	if len(raw.Cases) == 0 {
		return model.Hit{}, fmt.Errorf("hit %s has no case", raw.FileID)
	}

	hit := model.Hit{
		FileID:    raw.FileID,
		MD5Sum:    raw.MD5Sum,
		FileSize:  raw.FileSize,
		CaseID:    raw.Cases[0].CaseID,
		ProjectID: raw.Cases[0].Project.ProjectID,
	}
	if raw.CreatedDatetime != "" {
		created, err := time.Parse(time.RFC3339Nano, raw.CreatedDatetime)
		if err != nil {
			return model.Hit{}, fmt.Errorf("hit %s: created_datetime: %w", raw.FileID, err)
		}
		hit.CreatedDatetime = created
	}

	seen := make(map[string]bool)
	for _, s := range raw.Cases[0].Samples {
		aliquot := s.aliquotSubmitterID()
		if aliquot == "" || seen[aliquot] {
			continue
		}
		seen[aliquot] = true
		hit.Samples = append(hit.Samples, model.Sample{
			SampleType:         s.SampleType,
			TissueType:         s.TissueType,
			AliquotSubmitterID: aliquot,
		})
	}
	return hit, nil
}
