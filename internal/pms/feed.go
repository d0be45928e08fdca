package pms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

const (
	defaultFeedTimeout = 30 * time.Second
	defaultFeedPerPage = 100
)

// FeedSource reads a clinic's records from a paged JSON export feed. The feed
// is produced by the PMS connector and exposes /patients and /appointments,
// each returning {"data": [...], "total_pages": N}.
type FeedSource struct {
	httpClient *http.Client
	baseURL    string
	token      string
	perPage    int
	pager      PagerConfig
	logger     *logging.Logger
}

// FeedConfig configures a FeedSource.
type FeedConfig struct {
	BaseURL    string
	Token      string
	PerPage    int
	Pager      PagerConfig
	HTTPClient *http.Client
}

// NewFeedSource builds a feed-backed source.
func NewFeedSource(cfg FeedConfig, logger *logging.Logger) *FeedSource {
	if logger == nil {
		logger = logging.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultFeedTimeout}
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultFeedPerPage
	}
	return &FeedSource{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		perPage:    perPage,
		pager:      cfg.Pager,
		logger:     logger,
	}
}

type feedPatient struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
}

type feedAppointment struct {
	ID               string `json:"id"`
	PatientID        string `json:"patient_id"`
	AppointmentType  string `json:"appointment_type"`
	Status           string `json:"status"`
	AppointmentDate  string `json:"appointment_date"`
	PractitionerName string `json:"practitioner_name"`
}

type feedPage[T any] struct {
	Data       []T `json:"data"`
	TotalPages int `json:"total_pages"`
}

// Pull fetches all patient and appointment pages for a clinic.
func (s *FeedSource) Pull(ctx context.Context, clinicID string) (*Pull, error) {
	rawPatients, err := fetchAll[feedPatient](ctx, s, "/patients", clinicID)
	if err != nil {
		return nil, fmt.Errorf("pms feed: patients: %w", err)
	}
	rawAppts, err := fetchAll[feedAppointment](ctx, s, "/appointments", clinicID)
	if err != nil {
		return nil, fmt.Errorf("pms feed: appointments: %w", err)
	}

	pull := &Pull{FetchedAt: time.Now().UTC()}
	for _, p := range rawPatients {
		if strings.TrimSpace(p.ID) == "" {
			continue
		}
		pull.Patients = append(pull.Patients, Patient{
			PMSPatientID: p.ID,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			Email:        p.Email,
			Phone:        p.Phone,
			DateOfBirth:  ParseDate(p.DateOfBirth),
		})
	}
	for _, a := range rawAppts {
		if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.PatientID) == "" {
			continue
		}
		pull.Appointments = append(pull.Appointments, Appointment{
			PMSAppointmentID: a.ID,
			PMSPatientID:     a.PatientID,
			AppointmentType:  a.AppointmentType,
			Status:           a.Status,
			Date:             ParseDate(a.AppointmentDate),
			PractitionerName: a.PractitionerName,
		})
	}

	s.logger.Info("pms feed: pull complete",
		"clinic_id", clinicID,
		"patients", len(pull.Patients),
		"appointments", len(pull.Appointments),
	)
	return pull, nil
}

func fetchAll[T any](ctx context.Context, s *FeedSource, path, clinicID string) ([]T, error) {
	var first feedPage[T]
	if err := s.getPage(ctx, path, clinicID, 1, &first); err != nil {
		return nil, err
	}
	if first.TotalPages <= 1 {
		return first.Data, nil
	}

	rest, err := FetchPages(ctx, 2, first.TotalPages, s.pager, func(ctx context.Context, page int) ([]T, error) {
		var p feedPage[T]
		if err := s.getPage(ctx, path, clinicID, page, &p); err != nil {
			return nil, err
		}
		return p.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return append(first.Data, rest...), nil
}

func (s *FeedSource) getPage(ctx context.Context, path, clinicID string, page int, out any) error {
	q := url.Values{}
	q.Set("clinic_id", clinicID)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(s.perPage))
	endpoint := s.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		s.logger.Warn("pms feed non-2xx response", "status", resp.StatusCode, "path", path, "page", page, "body", msg)
		return fmt.Errorf("feed returned %d: %s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
