package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soyeahso/crewdesk/internal/call"
	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/menu"
	"github.com/soyeahso/crewdesk/internal/profile"
	"github.com/soyeahso/crewdesk/internal/store"
)

// writableConfigPrefixes are the config paths config.set may change.
// Credentials and the gateway's own listener stay out of reach.
var writableConfigPrefixes = []string{
	"assistant.profiles",
	"assistant.persistTools",
	"assistant.contextServers",
	"logging.level",
	"calls",
}

func configPathAllowed(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if key == p || strings.HasPrefix(key, p+".") {
			return true
		}
	}
	return false
}

// readableConfigPath hides gateway credentials from config.get.
func readableConfigPath(key string) bool {
	return !configPathAllowed(key, []string{"gateway.auth"}) && key != "gateway"
}

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("profiles.list", s.rpcProfilesList)
	s.Handle("profiles.activate", s.rpcProfilesActivate)
	s.Handle("tools.menu", s.rpcToolsMenu)
	s.Handle("tools.invoke", s.rpcToolsInvoke)
	s.Handle("calls.ring", s.rpcCallsRing)
	s.Handle("calls.respond", s.rpcCallsRespond)
	s.Handle("calls.current", s.rpcCallsCurrent)
	s.Handle("calls.recent", s.rpcCallsRecent)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Clients:  s.clients.Count(),
		UptimeMs: s.uptime().Milliseconds(),
	})
}

// Tool selector

func (s *Server) rpcProfilesList(rc *RequestContext) {
	if s.selector == nil {
		rc.RespondError(CodeUnavailable, "tool selector not configured")
		return
	}
	rc.Respond(profilesPayload{Profiles: s.selector.Profiles().All()})
}

type profilesPayload struct {
	Profiles []profile.Profile `json:"profiles"`
}

type profileActivateParams struct {
	ID string `json:"id"`
}

func (s *Server) rpcProfilesActivate(rc *RequestContext) {
	if s.selector == nil {
		rc.RespondError(CodeUnavailable, "tool selector not configured")
		return
	}
	var p profileActivateParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	if err := s.selector.ActivateProfileByID(rc.Ctx, p.ID); err != nil {
		var unknown *menu.UnknownProfileError
		if errors.As(err, &unknown) {
			rc.RespondError(CodeNotFound, err.Error())
			return
		}
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(s.selector.Open())
}

func (s *Server) rpcToolsMenu(rc *RequestContext) {
	if s.selector == nil {
		rc.RespondError(CodeUnavailable, "tool selector not configured")
		return
	}
	rc.Respond(s.selector.Open())
}

type toolsInvokeParams struct {
	Action *menu.Action `json:"action"`
}

// rpcToolsInvoke applies an action taken from a menu toggle and answers
// with a freshly built menu.
func (s *Server) rpcToolsInvoke(rc *RequestContext) {
	if s.selector == nil {
		rc.RespondError(CodeUnavailable, "tool selector not configured")
		return
	}
	var p toolsInvokeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Action == nil {
		rc.RespondError(CodeInvalidParams, "action is required")
		return
	}
	if err := s.selector.Invoke(rc.Ctx, *p.Action); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	rc.Respond(s.selector.Open())
}

// Calls

type callsRingParams struct {
	Caller    call.Caller `json:"caller"`
	ProjectID *uint64     `json:"projectId,omitempty"`
}

func (s *Server) rpcCallsRing(rc *RequestContext) {
	deps := s.calls.Load()
	if deps == nil || deps.hub == nil {
		rc.RespondError(CodeUnavailable, "calls not configured")
		return
	}
	var p callsRingParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Caller.Login == "" {
		rc.RespondError(CodeInvalidParams, "caller.login is required")
		return
	}
	c, err := deps.hub.Ring(p.Caller, p.ProjectID)
	if err != nil {
		rc.RespondError(CodeUnavailable, err.Error())
		return
	}
	rc.Respond(c)
}

type callsRespondParams struct {
	ID     string `json:"id"`
	Accept bool   `json:"accept"`
}

func (s *Server) rpcCallsRespond(rc *RequestContext) {
	deps := s.calls.Load()
	if deps == nil || deps.notifier == nil {
		rc.RespondError(CodeUnavailable, "calls not configured")
		return
	}
	var p callsRespondParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	if err := deps.notifier.Respond(rc.Ctx, p.ID, p.Accept); err != nil {
		if errors.Is(err, call.ErrNoIncomingCall) {
			rc.RespondError(CodeNotFound, err.Error())
			return
		}
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(map[string]any{"ok": true})
}

type currentCall struct {
	Call  *call.IncomingCall `json:"call"`
	State string             `json:"state"`
}

func (s *Server) rpcCallsCurrent(rc *RequestContext) {
	deps := s.calls.Load()
	if deps == nil || deps.notifier == nil {
		rc.RespondError(CodeUnavailable, "calls not configured")
		return
	}
	note := deps.notifier.Current()
	if note == nil {
		rc.Respond(currentCall{State: call.StateIdle.String()})
		return
	}
	rc.Respond(currentCall{Call: note.Call(), State: note.State().String()})
}

type callsRecentParams struct {
	Limit int `json:"limit"`
}

func (s *Server) rpcCallsRecent(rc *RequestContext) {
	if s.callLog == nil {
		rc.RespondError(CodeUnavailable, "call log not configured")
		return
	}
	var p callsRecentParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	records, err := s.callLog.Recent(p.Limit)
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	if records == nil {
		records = []store.CallRecord{}
	}
	rc.Respond(map[string]any{"calls": records})
}

// Config

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	if s.settings == nil {
		rc.RespondError(CodeUnavailable, "settings not configured")
		return
	}
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if !readableConfigPath(p.Key) {
		rc.RespondError(CodeUnauthorized, "config path not readable: "+p.Key)
		return
	}
	raw, err := config.LoadRaw(s.settings.Path())
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	value, ok := config.GetValueAtPath(raw, path)
	rc.Respond(map[string]any{"key": p.Key, "value": value, "found": ok})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// rpcConfigSet writes one value and reloads the settings. A value that
// leaves the file invalid is rolled back.
func (s *Server) rpcConfigSet(rc *RequestContext) {
	if s.settings == nil {
		rc.RespondError(CodeUnavailable, "settings not configured")
		return
	}
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if !configPathAllowed(p.Key, writableConfigPrefixes) {
		rc.RespondError(CodeUnauthorized, "config path not writable: "+p.Key)
		return
	}

	file := s.settings.Path()
	before, err := config.LoadRaw(file)
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	after, err := config.LoadRaw(file)
	if err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	config.SetValueAtPath(after, path, p.Value)
	if err := config.SaveRaw(file, after); err != nil {
		rc.RespondError(CodeInternal, err.Error())
		return
	}

	if err := s.settings.Reload(rc.Ctx); err != nil {
		if rbErr := config.SaveRaw(file, before); rbErr != nil {
			s.log.Error().Err(rbErr).Str("path", file).Msg("restoring config after rejected set")
		}
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}
