package pkg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswersSetKeepsInsertionOrder(t *testing.T) {
	var a Answers
	a = a.Set("chief_complaint", "headache")
	a = a.Set("pain_level", "6")
	a = a.Set("chief_complaint", "migraine")

	require.Len(t, a, 2)
	assert.Equal(t, "chief_complaint", a[0].Key)
	assert.Equal(t, "migraine", a[0].Value)
	v, ok := a.Get("pain_level")
	assert.True(t, ok)
	assert.Equal(t, "6", v)
	_, ok = a.Get("medications")
	assert.False(t, ok)
}

func TestAnswersMarshalNil(t *testing.T) {
	b, err := json.Marshal(Patient{})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"triage_data":[]`)
}

func TestFlexIntDecoding(t *testing.T) {
	cases := []struct {
		in      string
		want    FlexInt
		wantErr bool
	}{
		{`{"age": 30}`, 30, false},
		{`{"age": "42"}`, 42, false},
		{`{"age": " 7 "}`, 7, false},
		{`{"age": ""}`, 0, false},
		{`{"age": null}`, 0, false},
		{`{}`, 0, false},
		{`{"age": "thirty"}`, 0, true},
		{`{"age": 3.5}`, 0, true},
	}
	for _, tc := range cases {
		var req StartRequest
		err := json.Unmarshal([]byte(tc.in), &req)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, req.Age, tc.in)
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleClinician.Valid())
	assert.True(t, RoleStaff.Valid())
	assert.False(t, Role("admin").Valid())
}
