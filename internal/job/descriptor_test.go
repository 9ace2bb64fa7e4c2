package job

import (
	"errors"
	"testing"
	"time"
)

func TestFromAttributes(t *testing.T) {
	tests := []struct {
		name      string
		attrs     map[string]string
		wantOK    bool
		wantErr   bool
		want      Descriptor
		errFields []string
	}{
		{
			name:   "missing oid is skipped",
			attrs:  map[string]string{AttrAddress: "10.0.0.5"},
			wantOK: false,
		},
		{
			name:   "missing address is skipped",
			attrs:  map[string]string{AttrOID: "1.3.6.1.2.1.1.3.0"},
			wantOK: false,
		},
		{
			name:   "blank required values are skipped",
			attrs:  map[string]string{AttrOID: "  ", AttrAddress: "10.0.0.5"},
			wantOK: false,
		},
		{
			name:   "defaults applied",
			attrs:  map[string]string{AttrOID: "1.3.6.1.2.1.1.3.0", AttrAddress: "10.0.0.5"},
			wantOK: true,
			want: Descriptor{
				Target:    "MAIN.uptime",
				OID:       "1.3.6.1.2.1.1.3.0",
				Address:   "10.0.0.5",
				Community: DefaultCommunity,
				Interval:  DefaultInterval,
			},
		},
		{
			name: "all annotations",
			attrs: map[string]string{
				AttrOID:        "1.3.6.1.2.1.2.2.1.10.1",
				AttrAddress:    "switch01:1161",
				AttrCommunity:  "plant",
				AttrIntervalMS: "1000",
			},
			wantOK: true,
			want: Descriptor{
				Target:    "MAIN.uptime",
				OID:       "1.3.6.1.2.1.2.2.1.10.1",
				Address:   "switch01:1161",
				Community: "plant",
				Interval:  time.Second,
			},
		},
		{
			name: "unparsable interval falls back",
			attrs: map[string]string{
				AttrOID:        "1.3.6.1.2.1.1.3.0",
				AttrAddress:    "10.0.0.5",
				AttrIntervalMS: "fast",
			},
			wantOK: true,
			want: Descriptor{
				Target:    "MAIN.uptime",
				OID:       "1.3.6.1.2.1.1.3.0",
				Address:   "10.0.0.5",
				Community: DefaultCommunity,
				Interval:  DefaultInterval,
			},
		},
		{
			name: "negative interval falls back",
			attrs: map[string]string{
				AttrOID:        "1.3.6.1.2.1.1.3.0",
				AttrAddress:    "10.0.0.5",
				AttrIntervalMS: "-20",
			},
			wantOK: true,
			want: Descriptor{
				Target:    "MAIN.uptime",
				OID:       "1.3.6.1.2.1.1.3.0",
				Address:   "10.0.0.5",
				Community: DefaultCommunity,
				Interval:  DefaultInterval,
			},
		},
		{
			name: "blank community falls back",
			attrs: map[string]string{
				AttrOID:       "1.3.6.1.2.1.1.3.0",
				AttrAddress:   "10.0.0.5",
				AttrCommunity: "  \t",
			},
			wantOK: true,
			want: Descriptor{
				Target:    "MAIN.uptime",
				OID:       "1.3.6.1.2.1.1.3.0",
				Address:   "10.0.0.5",
				Community: DefaultCommunity,
				Interval:  DefaultInterval,
			},
		},
		{
			name:      "unparsable address is rejected",
			attrs:     map[string]string{AttrOID: "1.3.6.1.2.1.1.3.0", AttrAddress: "10.0.0.5:notaport"},
			wantOK:    true,
			wantErr:   true,
			errFields: []string{"address"},
		},
		{
			name:      "host with spaces is rejected",
			attrs:     map[string]string{AttrOID: "1.3.6.1.2.1.1.3.0", AttrAddress: "not a host"},
			wantOK:    true,
			wantErr:   true,
			errFields: []string{"address"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := FromAttributes("MAIN.uptime", tt.attrs)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var verrs *ValidationErrors
				if !errors.As(err, &verrs) {
					t.Fatalf("expected *ValidationErrors, got %T", err)
				}
				for i, field := range tt.errFields {
					if i >= len(verrs.Errors) || verrs.Errors[i].Field != field {
						t.Errorf("error fields = %+v, want %v", verrs.Errors, tt.errFields)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("descriptor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDescriptorHostPort(t *testing.T) {
	tests := []struct {
		address  string
		wantHost string
		wantPort uint16
	}{
		{"10.0.0.5", "10.0.0.5", 161},
		{"10.0.0.5:1161", "10.0.0.5", 1161},
		{"switch01", "switch01", 161},
		{"[fe80::1]:162", "fe80::1", 162},
		{"fe80::1", "fe80::1", 161},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			d := Descriptor{Address: tt.address}
			if got := d.Host(); got != tt.wantHost {
				t.Errorf("Host() = %q, want %q", got, tt.wantHost)
			}
			if got := d.Port(); got != tt.wantPort {
				t.Errorf("Port() = %d, want %d", got, tt.wantPort)
			}
		})
	}
}
