package assemble

import "testing"

func TestErrorCodeString(t *testing.T) {
	if NoError.String() != "NO_ERROR" {
		t.Fatalf("got %q", NoError.String())
	}
	if ErrBlobTooLarge.String() != "BLOB_TOO_LARGE" {
		t.Fatalf("got %q", ErrBlobTooLarge.String())
	}
	unknown := ErrorCode(9999)
	if unknown.String() != "UNKNOWN_ERROR(9999)" {
		t.Fatalf("got %q", unknown.String())
	}
}

func TestErrorCodeIsError(t *testing.T) {
	if NoError.IsError() {
		t.Fatal("NoError should not be an error")
	}
	if !ErrBlobTooLarge.IsError() {
		t.Fatal("ErrBlobTooLarge should be an error")
	}
}

func TestErrorCodeAsError(t *testing.T) {
	var err error = ErrTransportBufferFull
	code, ok := AsErrorCode(err)
	if !ok || code != ErrTransportBufferFull {
		t.Fatalf("got (%v, %v)", code, ok)
	}

	if _, ok := AsErrorCode(nil); ok {
		t.Fatal("nil error should not yield a code")
	}
}

func TestParamsForUnknownKind(t *testing.T) {
	params := ParamsFor(OperationKind(99))
	if params != (RPCParams{}) {
		t.Fatalf("expected zero value for unknown kind, got %+v", params)
	}
}

func TestParamsForKnownKinds(t *testing.T) {
	if ParamsFor(OpRelay).HitLimit != 3 {
		t.Fatalf("relay hit limit: got %d, want 3", ParamsFor(OpRelay).HitLimit)
	}
	if ParamsFor(OpPut).HitLimit != 0 {
		t.Fatalf("put hit limit: got %d, want 0", ParamsFor(OpPut).HitLimit)
	}
}
