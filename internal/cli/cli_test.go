package cli

import "testing"

func TestParseParticipant(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		wantName  string
		wantAgent string
		wantErr   bool
	}{
		{name: "valid", spec: "alice=claude", wantName: "alice", wantAgent: "claude"},
		{name: "agent with equals", spec: "bob=custom=v2", wantName: "bob", wantAgent: "custom=v2"},
		{name: "missing separator", spec: "alice", wantErr: true},
		{name: "empty name", spec: "=claude", wantErr: true},
		{name: "empty agent", spec: "alice=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, agent, err := parseParticipant(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParticipant(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if name != tt.wantName || agent != tt.wantAgent {
				t.Errorf("parseParticipant(%q) = (%q, %q), want (%q, %q)",
					tt.spec, name, agent, tt.wantName, tt.wantAgent)
			}
		})
	}
}
