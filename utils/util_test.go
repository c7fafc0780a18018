package utils

import "testing"

func TestParseActionRef(t *testing.T) {
	tests := []struct {
		uses        string
		wantName    string
		wantVersion string
	}{
		{"trivy-scan@v1", "trivy-scan", "v1"},
		{"git-checkout@v1.2.0", "git-checkout", "v1.2.0"},
		{"shell", "shell", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, version := ParseActionRef(tt.uses)
		if name != tt.wantName || version != tt.wantVersion {
			t.Errorf("ParseActionRef(%q) = (%q, %q), want (%q, %q)", tt.uses, name, version, tt.wantName, tt.wantVersion)
		}
	}
}

func TestGetNodeKey(t *testing.T) {
	if got := GetNodeKey("worker-1", "10.0.0.2:9706"); got != "worker-1@10.0.0.2:9706" {
		t.Errorf("GetNodeKey() = %v", got)
	}
}

func TestGetJobNameAndIDFromFormatString(t *testing.T) {
	type args struct {
		str string
	}
	tests := []struct {
		name    string
		args    args
		want    string
		want1   int
		wantErr bool
	}{
		{
			name: "test1",
			args: args{
				str: "test1(1)",
			},
			want:    "test1",
			want1:   1,
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, got1, err := GetJobNameAndIDFromFormatString(tt.args.str)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetJobNameAndIDFromFormatString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("GetJobNameAndIDFromFormatString() got = %v, want %v", got, tt.want)
			}
			if got1 != tt.want1 {
				t.Errorf("GetJobNameAndIDFromFormatString() got1 = %v, want %v", got1, tt.want1)
			}
		})
	}
}
