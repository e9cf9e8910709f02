package control

import "testing"

func alwaysKnown(string) bool { return true }

func TestGCSPrepareCommitSuccess(t *testing.T) {
	gcs := New(RoleGCS, "cs-mlkem768-aesgcm-mldsa65", alwaysKnown, nil)

	rid, err := gcs.RequestPrepare("cs-mlkem1024-chacha20poly1305-mldsa87")
	if err != nil {
		t.Fatal(err)
	}
	if gcs.Phase() != Negotiating {
		t.Fatalf("expected NEGOTIATING, got %s", gcs.Phase())
	}
	msgs := gcs.Drain()
	if len(msgs) != 1 || msgs[0].Type != "prepare_rekey" {
		t.Fatalf("expected one queued prepare_rekey, got %+v", msgs)
	}

	res, err := gcs.HandleControl(Message{Type: "prepare_ok", Rid: rid})
	if err != nil {
		t.Fatal(err)
	}
	if !res.StartHandshake {
		t.Fatal("expected StartHandshake after prepare_ok")
	}
	if gcs.Phase() != Swapping {
		t.Fatalf("expected SWAPPING, got %s", gcs.Phase())
	}

	gcs.RecordRekeyResult(rid, true, "cs-mlkem1024-chacha20poly1305-mldsa87", 120)
	if gcs.Phase() != Running {
		t.Fatalf("expected RUNNING after successful rekey, got %s", gcs.Phase())
	}
	stats := gcs.Stats()
	if stats.RekeysOK != 1 || stats.LastRekeySuite != "cs-mlkem1024-chacha20poly1305-mldsa87" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGCSPrepareFailResetsState(t *testing.T) {
	gcs := New(RoleGCS, "cs-mlkem768-aesgcm-mldsa65", alwaysKnown, nil)
	rid, err := gcs.RequestPrepare("cs-mlkem1024-chacha20poly1305-mldsa87")
	if err != nil {
		t.Fatal(err)
	}
	gcs.Drain()

	_, err = gcs.HandleControl(Message{Type: "prepare_fail", Rid: rid, Reason: "unsafe"})
	if err != nil {
		t.Fatal(err)
	}
	if gcs.Phase() != Running {
		t.Fatalf("expected RUNNING after prepare_fail, got %s", gcs.Phase())
	}
	if gcs.Stats().RekeysFail != 1 {
		t.Fatalf("expected rekeys_fail=1, got %+v", gcs.Stats())
	}
}

func TestDronePrepareAndCommitFlow(t *testing.T) {
	drone := New(RoleDrone, "cs-mlkem768-aesgcm-mldsa65", alwaysKnown, nil)

	res, err := drone.HandleControl(Message{Type: "prepare_rekey", Suite: "cs-mlkem1024-chacha20poly1305-mldsa87", Rid: "rid-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.StartHandshake {
		t.Fatal("prepare_rekey alone should not start the handshake yet")
	}
	if drone.Phase() != Negotiating {
		t.Fatalf("expected NEGOTIATING, got %s", drone.Phase())
	}
	msgs := drone.Drain()
	if len(msgs) != 1 || msgs[0].Type != "prepare_ok" {
		t.Fatalf("expected one queued prepare_ok, got %+v", msgs)
	}

	res, err = drone.HandleControl(Message{Type: "commit_rekey", Rid: "rid-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.StartHandshake || res.TargetSuite != "cs-mlkem1024-chacha20poly1305-mldsa87" {
		t.Fatalf("expected start-handshake toward the pending suite, got %+v", res)
	}
	if drone.Phase() != Swapping {
		t.Fatalf("expected SWAPPING, got %s", drone.Phase())
	}
}

func TestDronePrepareFailWhenGuardBlocks(t *testing.T) {
	guard := func(suiteID string) (bool, string) { return false, "policy vetoed suite" }
	drone := New(RoleDrone, "cs-mlkem768-aesgcm-mldsa65", alwaysKnown, guard)

	_, err := drone.HandleControl(Message{Type: "prepare_rekey", Suite: "cs-mlkem1024-chacha20poly1305-mldsa87", Rid: "rid-2"})
	if err != nil {
		t.Fatal(err)
	}
	if drone.Phase() != Running {
		t.Fatalf("expected to remain RUNNING when guard blocks, got %s", drone.Phase())
	}
	msgs := drone.Drain()
	if len(msgs) != 1 || msgs[0].Type != "prepare_fail" || msgs[0].Reason != "policy vetoed suite" {
		t.Fatalf("expected one queued prepare_fail with guard reason, got %+v", msgs)
	}
}
