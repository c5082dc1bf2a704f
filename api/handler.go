package api

import (
	"bytes"
	"log/slog"
	"strings"

	"dlsim/config"
	"dlsim/downloads"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// API wraps the manager so handlers can be tested against a real engine.
type API struct {
	mgr      *downloads.Manager
	defaults config.Defaults
	log      *slog.Logger
}

func New(mgr *downloads.Manager, defaults config.Defaults, log *slog.Logger) *API {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &API{mgr: mgr, defaults: defaults, log: log}
}

// Field is form input that may arrive as a JSON string or a bare number.
type Field string

func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}
	*f = Field(data)
	return nil
}

type CreateRequest struct {
	Name      string `json:"name"`
	Size      Field  `json:"size"`
	SpeedKBps Field  `json:"speed_kbps"`
}

type ConcurrencyRequest struct {
	Max *int `json:"max"`
}

type BandwidthRequest struct {
	BytesPerSecond *int64 `json:"bytes_per_second"`
}

func (a *API) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	d := a.defaults.Descriptor(req.Name, string(req.Size), string(req.SpeedKBps), a.mgr.NextSeq())
	t := a.mgr.CreateAndSubmit(d)
	Success(c, t.Snapshot())
}

func (a *API) List(c *gin.Context) {
	Success(c, lo.Map(a.mgr.Tasks(), func(t *downloads.Task, _ int) downloads.Snapshot {
		return t.Snapshot()
	}))
}

func (a *API) Get(c *gin.Context) {
	t, err := a.task(c)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, t.Snapshot())
}

func (a *API) Pause(c *gin.Context) {
	a.control(c, (*downloads.Task).Pause)
}

func (a *API) Resume(c *gin.Context) {
	a.control(c, (*downloads.Task).Resume)
}

func (a *API) Cancel(c *gin.Context) {
	a.control(c, (*downloads.Task).Cancel)
}

func (a *API) control(c *gin.Context, op func(*downloads.Task)) {
	t, err := a.task(c)
	if err != nil {
		fail(c, err)
		return
	}
	op(t)
	Success(c, t.Snapshot())
}

func (a *API) Prune(c *gin.Context) {
	Success(c, gin.H{"evicted": a.mgr.Prune()})
}

func (a *API) Stats(c *gin.Context) {
	Success(c, a.mgr.Stats())
}

func (a *API) SetConcurrency(c *gin.Context) {
	var req ConcurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	if req.Max == nil {
		fail(c, errors.Wrap(ErrBadRequest, "max is required"))
		return
	}
	a.mgr.SetMaxConcurrent(*req.Max)
	Success(c, gin.H{"max": a.mgr.MaxConcurrent()})
}

func (a *API) SetBandwidth(c *gin.Context) {
	var req BandwidthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	if req.BytesPerSecond == nil || *req.BytesPerSecond < 0 {
		fail(c, errors.Wrap(ErrBadRequest, "bytes_per_second must be zero or positive"))
		return
	}
	a.mgr.SetBandwidthLimit(*req.BytesPerSecond)
	Success(c, gin.H{"bytes_per_second": a.mgr.BandwidthLimit()})
}

func (a *API) task(c *gin.Context) (*downloads.Task, error) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "invalid id %q", raw)
	}
	t, ok := a.mgr.Get(id)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return t, nil
}
