package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

const maxBodySize = 1 << 20

// EchoServer serves the same API as HTTPServer on top of echo.
type EchoServer struct {
	service *Service
	echo    *echo.Echo
	logger  log.FieldLogger
}

func NewEchoServer(service *Service, opts Options) *EchoServer {
	s := &EchoServer{service: service, echo: echo.New(), logger: opts.logger()}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = s.handleError

	e.Use(s.accessLog)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{opts.corsOrigin()},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	}))
	if opts.StaticDir != "" {
		e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
			Root:  opts.StaticDir,
			HTML5: true,
			Skipper: func(c echo.Context) bool {
				return isAPIPath(c.Request().URL.Path)
			},
		}))
	}

	e.GET("/api/health", s.health)
	e.HEAD("/api/health", s.health)
	e.GET("/api/ready", s.ready)
	e.HEAD("/api/ready", s.ready)
	e.GET("/api/lists", s.board)
	e.POST("/api/lists", s.createList)
	e.PUT("/api/lists/:id", s.renameList)
	e.DELETE("/api/lists/:id", s.deleteList)
	e.POST("/api/cards", s.createCard)
	e.PUT("/api/cards/:id", s.editCard)
	e.DELETE("/api/cards/:id", s.deleteCard)
	e.POST("/api/cards/:id/move", s.moveCard)
	e.GET("/api/search", s.search)
	return s
}

func (s *EchoServer) Handler() http.Handler {
	return s.echo
}

func (s *EchoServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *EchoServer) ready(c echo.Context) error {
	status, payload := readiness(c.Request().Context(), s.service)
	return c.JSON(status, payload)
}

func (s *EchoServer) board(c echo.Context) error {
	payload, err := s.service.BoardJSON(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, payload)
}

func (s *EchoServer) createList(c echo.Context) error {
	var body ListInput
	if err := decodeEchoBody(c, &body); err != nil {
		return err
	}
	list, err := s.service.CreateList(c.Request().Context(), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, list)
}

func (s *EchoServer) renameList(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return notFound("List not found")
	}
	var body ListInput
	if err := decodeEchoBody(c, &body); err != nil {
		return err
	}
	list, err := s.service.RenameList(c.Request().Context(), id, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *EchoServer) deleteList(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return notFound("List not found")
	}
	if err := s.service.DeleteList(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *EchoServer) createCard(c echo.Context) error {
	var body CreateCardInput
	if err := decodeEchoBody(c, &body); err != nil {
		return err
	}
	card, err := s.service.CreateCard(c.Request().Context(), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, card)
}

func (s *EchoServer) editCard(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return notFound("Card not found")
	}
	var body EditCardInput
	if err := decodeEchoBody(c, &body); err != nil {
		return err
	}
	card, err := s.service.EditCard(c.Request().Context(), id, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, card)
}

func (s *EchoServer) deleteCard(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return notFound("Card not found")
	}
	if err := s.service.DeleteCard(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *EchoServer) moveCard(c echo.Context) error {
	var body MoveCardInput
	if err := decodeEchoBody(c, &body); err != nil {
		return err
	}
	id, ok := parseID(c.Param("id"))
	if !ok {
		if body.TargetListID == nil || body.Position == nil {
			return validationError("target_list_id and position are required")
		}
		return notFound("Card not found")
	}
	if err := s.service.MoveCard(c.Request().Context(), id, body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *EchoServer) search(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	payload, err := s.service.SearchCards(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *EchoServer) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		requestID := requestIDFrom(req.Header.Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(context.WithValue(req.Context(), requestIDKey{}, requestID)))
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)
		if isAPIPath(req.URL.Path) {
			c.Response().Header().Set("Cache-Control", "no-store")
		}

		started := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		logAccess(s.logger, requestID, req.Method, req.URL.Path, c.Response().Status, started)
		return nil
	}
}

func (s *EchoServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code, message := "HTTP_ERROR", http.StatusText(httpErr.Code)
		switch httpErr.Code {
		case http.StatusNotFound:
			code, message = "NOT_FOUND", "Not found"
		case http.StatusMethodNotAllowed:
			code, message = "METHOD_NOT_ALLOWED", "Method not allowed"
		}
		_ = c.JSON(httpErr.Code, errorBody(code, message, nil))
		return
	}

	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", requestIDFromContext(c.Request().Context())).Error("request failed")
	}
	_ = c.JSON(status, errorBody(code, message, details))
}

func decodeEchoBody(c echo.Context, target any) error {
	body := c.Request().Body
	if body == nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	defer body.Close()
	decoder := sonic.ConfigStd.NewDecoder(io.LimitReader(body, maxBodySize))
	if err := decoder.Decode(target); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return nil
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// sonicSerializer renders echo responses with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i)
}
