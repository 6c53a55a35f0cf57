package loader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Source yields raw dataset rows.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
	Name() string
}

const (
	defaultRowsBaseURL = "https://datasets-server.huggingface.co"
	pageSize           = 100
)

// HuggingFaceSource pages through the datasets-server rows API.
type HuggingFaceSource struct {
	BaseURL string
	Dataset string
	Split   string
	Config  string
	// MaxRows stops paging early when positive.
	MaxRows int
	Client  *http.Client
}

// NewHuggingFaceSource returns a source for the train split of dataset.
func NewHuggingFaceSource(baseURL, dataset string, timeout time.Duration) *HuggingFaceSource {
	if baseURL == "" {
		baseURL = defaultRowsBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HuggingFaceSource{
		BaseURL: baseURL,
		Dataset: dataset,
		Split:   "train",
		Config:  "default",
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HuggingFaceSource) Name() string { return "huggingface:" + s.Dataset }

type rowsPage struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

func (s *HuggingFaceSource) Rows(ctx context.Context) ([]Row, error) {
	var rows []Row
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			rows = append(rows, Row(r.Row))
		}
		if len(page.Rows) == 0 || offset+len(page.Rows) >= page.NumRowsTotal {
			break
		}
		if s.MaxRows > 0 && len(rows) >= s.MaxRows {
			break
		}
	}
	if s.MaxRows > 0 && len(rows) > s.MaxRows {
		rows = rows[:s.MaxRows]
	}
	return rows, nil
}

func (s *HuggingFaceSource) fetchPage(ctx context.Context, offset int) (rowsPage, error) {
	q := url.Values{}
	q.Set("dataset", s.Dataset)
	q.Set("config", s.Config)
	q.Set("split", s.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/rows?"+q.Encode(), nil)
	if err != nil {
		return rowsPage{}, fmt.Errorf("build rows request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return rowsPage{}, fmt.Errorf("fetch rows at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rowsPage{}, fmt.Errorf("fetch rows at offset %d: status %d: %s", offset, resp.StatusCode, body)
	}

	var page rowsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return rowsPage{}, fmt.Errorf("decode rows page: %w", err)
	}
	return page, nil
}

// CSVSource reads a local export with the same column headers as the dataset.
type CSVSource struct {
	Path string
}

func (s CSVSource) Name() string { return "csv:" + s.Path }

func (s CSVSource) Rows(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
