package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annel0/replaycore/internal/replay/rangequery"
)

func (s *Server[T]) handleRecorderState(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("recorder not configured"))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{
		"state":       s.rec.GetState().String(),
		"currentTick": s.rec.GetCurrentTick(),
	}))
}

func (s *Server[T]) handleRecorderStart(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("recorder not configured"))
		return
	}
	if err := s.rec.Start(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.rec.GetState().String()}))
}

func (s *Server[T]) handleRecorderPause(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("recorder not configured"))
		return
	}
	if err := s.rec.Pause(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.rec.GetState().String()}))
}

func (s *Server[T]) handleRecorderResume(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("recorder not configured"))
		return
	}
	if err := s.rec.Resume(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.rec.GetState().String()}))
}

func (s *Server[T]) handleRecorderStop(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("recorder not configured"))
		return
	}
	meta, err := s.rec.Stop()
	if err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(meta))
}

// handleRecorderRecord accepts one payload as the request body and forwards
// it to the recorder verbatim. T must be JSON-decodable for this endpoint to
// be usable; callers with a non-JSON payload type should call Record
// directly from process code instead of through HTTP.
func (s *Server[T]) handleRecorderRecord(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("recorder not configured"))
		return
	}

	var payload T
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errResponse("invalid payload: "+err.Error()))
		return
	}

	if err := s.rec.Record(payload); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"tick": s.rec.GetCurrentTick()}))
}

func (s *Server[T]) handleReplayerState(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{
		"state":       s.ply.GetState().String(),
		"currentTick": s.ply.GetCurrentTick(),
		"currentTime": s.ply.GetCurrentTime(),
		"speed":       s.ply.GetSpeed(),
	}))
}

func (s *Server[T]) handleReplayerPlay(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	if err := s.ply.Play(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.ply.GetState().String()}))
}

func (s *Server[T]) handleReplayerPause(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	if err := s.ply.Pause(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.ply.GetState().String()}))
}

func (s *Server[T]) handleReplayerResume(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	if err := s.ply.Resume(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.ply.GetState().String()}))
}

func (s *Server[T]) handleReplayerStop(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	if err := s.ply.Stop(); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"state": s.ply.GetState().String()}))
}

type seekRequest struct {
	Tick int64 `json:"tick"`
}

func (s *Server[T]) handleReplayerSeek(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errResponse("invalid request: "+err.Error()))
		return
	}
	if err := s.ply.Seek(req.Tick); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"currentTick": s.ply.GetCurrentTick()}))
}

type seekToTimeRequest struct {
	Ms int64 `json:"ms"`
}

func (s *Server[T]) handleReplayerSeekToTime(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	var req seekToTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errResponse("invalid request: "+err.Error()))
		return
	}
	if err := s.ply.SeekToTime(req.Ms); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"currentTick": s.ply.GetCurrentTick()}))
}

type stepRequest struct {
	N         int64  `json:"n"`
	Direction string `json:"direction"` // "forward" (default) or "backward"
}

func (s *Server[T]) handleReplayerStep(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errResponse("invalid request: "+err.Error()))
		return
	}
	if req.N <= 0 {
		req.N = 1
	}

	var err error
	if req.Direction == "backward" {
		err = s.ply.StepBackward(req.N)
	} else {
		err = s.ply.StepForward(req.N)
	}
	if err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"currentTick": s.ply.GetCurrentTick()}))
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server[T]) handleReplayerSpeed(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errResponse("invalid request: "+err.Error()))
		return
	}
	if err := s.ply.SetSpeed(req.Speed); err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(gin.H{"speed": s.ply.GetSpeed()}))
}

// handleRangeQuery supports ?startTick=&endTick= or ?startMs=&endMs=, plus
// ?includePartial=true.
func (s *Server[T]) handleRangeQuery(c *gin.Context) {
	if s.ply == nil {
		c.JSON(http.StatusServiceUnavailable, errResponse("replayer not configured"))
		return
	}

	opts := rangequery.Options{IncludePartialTicks: c.Query("includePartial") == "true"}

	if st, sok := c.GetQuery("startTick"); sok {
		et := c.Query("endTick")
		startTick, err1 := strconv.ParseInt(st, 10, 64)
		endTick, err2 := strconv.ParseInt(et, 10, 64)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, errResponse("startTick/endTick must be integers"))
			return
		}
		opts.TickRange = &[2]int64{startTick, endTick}
	} else if sm, smok := c.GetQuery("startMs"); smok {
		em := c.Query("endMs")
		startMs, err1 := strconv.ParseInt(sm, 10, 64)
		endMs, err2 := strconv.ParseInt(em, 10, 64)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, errResponse("startMs/endMs must be integers"))
			return
		}
		opts.TimeRangeMs = &[2]int64{startMs, endMs}
	} else {
		c.JSON(http.StatusBadRequest, errResponse("one of startTick/endTick or startMs/endMs is required"))
		return
	}

	entries, err := s.ply.GetRangeData(opts)
	if err != nil {
		c.JSON(statusFor(err), errResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, okResponse(entries))
}
