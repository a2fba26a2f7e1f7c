package devserver

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	signups     atomic.Uint64
	logins      atomic.Uint64
	uploads     atomic.Uint64
	questions   atomic.Uint64
	rateLimited atomic.Uint64
	processing  atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSignup()      { m.signups.Add(1) }
func (m *Metrics) IncLogin()       { m.logins.Add(1) }
func (m *Metrics) IncUpload()      { m.uploads.Add(1) }
func (m *Metrics) IncQuestion()    { m.questions.Add(1) }
func (m *Metrics) IncRateLimited() { m.rateLimited.Add(1) }

func (m *Metrics) StartProcessing() { m.processing.Add(1) }
func (m *Metrics) DoneProcessing()  { m.processing.Add(-1) }

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"signups_total":        m.signups.Load(),
		"logins_total":         m.logins.Load(),
		"uploads_total":        m.uploads.Load(),
		"questions_total":      m.questions.Load(),
		"rate_limited_total":   m.rateLimited.Load(),
		"documents_processing": m.processing.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
