package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_session_id_canonical_form(t *testing.T) {
	cases := []struct {
		name string
		id   SessionID
		want string
	}{
		{
			name: "comp_ids_only",
			id:   SessionID{BeginString: BeginStringFIX44, SenderCompID: "ISLD", TargetCompID: "TW"},
			want: "FIX.4.4:ISLD->TW",
		},
		{
			name: "sub_and_qualifier",
			id: SessionID{
				BeginString: BeginStringFIX42, SenderCompID: "ISLD", SenderSubID: "DESK",
				TargetCompID: "TW", Qualifier: "backup",
			},
			want: "FIX.4.2:ISLD/DESK->TW:backup",
		},
		{
			name: "location_without_sub",
			id: SessionID{
				BeginString: BeginStringFIXT11, SenderCompID: "ISLD",
				TargetCompID: "TW", TargetLocationID: "LN",
			},
			want: "FIXT.1.1:ISLD->TW//LN",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.id.String())
			parsed, err := ParseSessionID(tc.want)
			require.NoError(t, err)
			assert.Equal(t, tc.id, parsed)
		})
	}
}

func Test_session_id_from_header_is_receiver_perspective(t *testing.T) {
	m, err := ParseMessage(newHeartbeat(t))
	require.NoError(t, err)

	id, err := SessionIDFromHeader(m)
	require.NoError(t, err)
	assert.Equal(t, "FIX.4.4:TW->ISLD", id.String())
	assert.Equal(t, "FIX.4.4:ISLD->TW", id.Reverse().String())
}

func Test_parse_session_id_rejects_malformed(t *testing.T) {
	for _, s := range []string{"", "FIX.4.4", "FIX.4.4:A", ":A->B", "FIX.4.4:->B"} {
		_, err := ParseSessionID(s)
		assert.Error(t, err, s)
	}
}

func Test_registry_lookup(t *testing.T) {
	r := DefaultRegistry()
	f, err := r.Lookup(BeginStringFIX42)
	require.NoError(t, err)

	m := f.Create(MsgTypeLogon)
	bs, err := m.Header.GetString(TagBeginString)
	require.NoError(t, err)
	assert.Equal(t, BeginStringFIX42, bs)

	_, err = r.Lookup("FIX.5.9")
	assert.Error(t, err)
}
