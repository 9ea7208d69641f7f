package runtime

import "testing"

func TestParseControlPortFileTCP(t *testing.T) {
	target, err := parseControlPortFile([]byte("PORT=127.0.0.1:9051\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.TCPHost != "127.0.0.1" || target.TCPPort != 9051 {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestParseControlPortFileUnix(t *testing.T) {
	target, err := parseControlPortFile([]byte("UNIX_SOCKET=/tmp/tor/control\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.UnixPath != "/tmp/tor/control" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestParseControlPortFileMalformed(t *testing.T) {
	if _, err := parseControlPortFile([]byte("garbage\n")); err == nil {
		t.Fatal("expected error for malformed control port file")
	}
}

func TestParseBootstrapLine(t *testing.T) {
	status, ok := parseBootstrapLine(`BOOTSTRAP PROGRESS=45 TAG=handshake_dir SUMMARY="Finishing handshake"`)
	if !ok {
		t.Fatal("expected parseBootstrapLine to recognize a BOOTSTRAP line")
	}
	if status.Progress != 45 || status.Tag != "handshake_dir" || status.Summary != "Finishing handshake" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Done {
		t.Fatal("45%% progress must not be Done")
	}

	done, ok := parseBootstrapLine(`BOOTSTRAP PROGRESS=100 TAG=done SUMMARY="Done"`)
	if !ok || !done.Done {
		t.Fatalf("expected 100%% progress to be Done, got %+v ok=%v", done, ok)
	}
}

func TestParseBootstrapLineIgnoresOtherEvents(t *testing.T) {
	if _, ok := parseBootstrapLine("CIRCUIT_ESTABLISHED"); ok {
		t.Fatal("non-BOOTSTRAP lines must not parse")
	}
}
