package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestAndResponse(t *testing.T) {
	req, err := NewRequest("r1", "tools.menu", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, req.Type)
	assert.JSONEq(t, `{"x":1}`, string(req.Params))

	res, err := NewResponse("r1", map[string]string{"status": "ok"})
	require.NoError(t, err)
	require.NotNil(t, res.OK)
	assert.True(t, *res.OK)
	assert.Nil(t, res.Error)

	fail := NewErrorResponse("r1", ErrorShape{Code: CodeNotFound, Message: "gone"})
	require.NotNil(t, fail.OK)
	assert.False(t, *fail.OK)
	assert.Equal(t, CodeNotFound, fail.Error.Code)
}

func TestEventFrameWireFormat(t *testing.T) {
	ev, err := NewEvent(EventJoinProject, map[string]any{"projectId": 7, "followUserId": 42}, 3)
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "event",
		"event": "workspace.join_project",
		"seq": 3,
		"payload": {"projectId": 7, "followUserId": 42}
	}`, string(data))
}

func TestConnectParamsOmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{MinProtocol: 1, MaxProtocol: 1, Client: ClientInfo{ID: "tui", Version: "1"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "auth")
}

func TestEventsAdvertised(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"call.incoming", "call.closed", "tools.changed", "workspace.join_project", "settings.reloaded",
	}, Events)
}
