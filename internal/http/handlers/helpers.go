package handlers

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data map[string]any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// resolveYear reads "year" from the query, falling back to the latest
// academic year with ingested facts. Returns ("", false) after writing the
// error response when no facts exist at all.
func resolveYear(ctx *fasthttp.RequestCtx, db *gorm.DB) (string, bool) {
	if y := string(ctx.QueryArgs().Peek("year")); y != "" {
		return y, true
	}
	year, err := dbpkg.LatestAcademicYear(db)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to resolve academic year")
		return "", false
	}
	if year == "" {
		errResponse(ctx, fasthttp.StatusNotFound, "no academic years ingested")
		return "", false
	}
	return year, true
}

// parseLimit reads "limit" from the query with a default and a hard cap.
func parseLimit(ctx *fasthttp.RequestCtx, def, max int) int {
	limit := def
	if s := string(ctx.QueryArgs().Peek("limit")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			if n > max {
				n = max
			}
			limit = n
		}
	}
	return limit
}

// pathString reads a router path parameter as a string.
func pathString(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

// Healthz reports liveness and database reachability.
func Healthz(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var one int
		if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil {
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "database unreachable")
			return
		}
		jsonResponse(ctx, map[string]any{"status": "ok"})
	}
}
