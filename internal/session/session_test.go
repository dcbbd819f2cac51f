package session

import "testing"

func TestSourceClassification(t *testing.T) {
	hard := []Source{SourceLock, SourceSuspend, SourceShutdown}
	for _, s := range hard {
		if !s.HardIdle() {
			t.Errorf("%s should be hard idle", s)
		}
		if !s.StartsIdle() {
			t.Errorf("%s should start an absence", s)
		}
	}

	if SourceUserInactive.HardIdle() {
		t.Error("user-inactive is inferred, not hard idle")
	}
	if !SourceUserInactive.StartsIdle() {
		t.Error("user-inactive should start an absence")
	}

	for _, s := range []Source{SourceHeartbeat, SourceUnlock, SourceResume, SourceUserActive} {
		if s.StartsIdle() {
			t.Errorf("%s should not start an absence", s)
		}
	}
}

func TestSourceValid(t *testing.T) {
	if !SourceResume.Valid() {
		t.Error("resume should be valid")
	}
	if Source("reboot").Valid() {
		t.Error("unknown tag should be invalid")
	}
}
