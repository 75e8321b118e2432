package codec

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/engine/enginetest"
)

// #region harness
func startServer(t *testing.T, eng engine.Engine, withHealth bool) *EngineClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterEngineServer(srv, eng)
	if withHealth {
		grpc_health_v1.RegisterHealthServer(srv, health.NewServer())
	}
	go srv.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	client := NewEngineClientWithConn(conn)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return client
}

func randomWalkSpec(t *testing.T) engine.Spec {
	t.Helper()
	spec, err := engine.LoadSpec("random_walk")
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	return spec
}

func collect(t *testing.T, sub *engine.Subscription) []engine.Update {
	t.Helper()
	var out []engine.Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatalf("timed out after %d updates", len(out))
		}
	}
}

// #endregion harness

// #region infer-tests
func TestInfer_RoundTrip(t *testing.T) {
	eng := &enginetest.Echo{}
	client := startServer(t, eng, false)
	spec := randomWalkSpec(t)

	records := []engine.Record{{Name: "y", Value: 1.5}, {Name: "y", Value: -2.25}}
	res, err := client.Infer(context.Background(), spec.Request(records, true))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	xs := res.Posteriors["x"]
	if len(xs) != 2 {
		t.Fatalf("x posteriors = %d, want 2", len(xs))
	}
	if m, _ := xs[1].Mean(); m != -2.25 {
		t.Errorf("x[1] mean = %v, want -2.25", m)
	}
	if len(res.FreeEnergy) != 2 {
		t.Errorf("free energy len = %d, want 2", len(res.FreeEnergy))
	}

	got := eng.Requests()
	if len(got) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(got))
	}
	if got[0].Model.Name != spec.Model.Name {
		t.Errorf("model = %q, want %q", got[0].Model.Name, spec.Model.Name)
	}
	if len(got[0].Records) != 2 || got[0].Records[0].Value != 1.5 {
		t.Errorf("records not carried: %+v", got[0].Records)
	}
	if got[0].Initial["x_prev_var"] != 1000 {
		t.Errorf("initial x_prev_var = %v, want 1000", got[0].Initial["x_prev_var"])
	}
}

func TestInfer_EngineError(t *testing.T) {
	eng := &enginetest.Echo{InferErr: errors.New("diverged")}
	client := startServer(t, eng, false)

	_, err := client.Infer(context.Background(), randomWalkSpec(t).Request(nil, false))
	if err == nil {
		t.Fatal("expected error from failing engine")
	}
}

// #endregion infer-tests

// #region stream-tests
func TestSubscribe_DeliversUpdatesInOrder(t *testing.T) {
	eng := &enginetest.Echo{}
	client := startServer(t, eng, false)
	spec := randomWalkSpec(t)

	records := make(chan engine.Record, 3)
	sub, err := client.Subscribe(context.Background(), spec.StreamRequest(false), records)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	values := []float64{0.5, 1.5, 2.5}
	for _, v := range values {
		records <- engine.Record{Name: "y", Value: v}
	}
	close(records)

	updates := collect(t, sub)
	if len(updates) != len(values) {
		t.Fatalf("updates = %d, want %d", len(updates), len(values))
	}
	for i, u := range updates {
		if u.Index != i {
			t.Errorf("update %d index = %d", i, u.Index)
		}
		if m, _ := u.Posteriors["x"].Mean(); m != values[i] {
			t.Errorf("update %d x mean = %v, want %v", i, m, values[i])
		}
	}
	if got := updates[0].Priors["x_prev_var"]; got != 1000 {
		t.Errorf("first update x_prev_var = %v, want initial 1000", got)
	}
	for i := 1; i < len(updates); i++ {
		if got := updates[i].Priors["x_prev_mean"]; got != values[i-1] {
			t.Errorf("update %d x_prev_mean = %v, want %v from the previous posterior", i, got, values[i-1])
		}
	}
	if err := sub.Err(); err != nil {
		t.Errorf("Err after clean end = %v", err)
	}

	streams := eng.Streams()
	if len(streams) != 1 || len(streams[0].Autoupdate) != 4 {
		t.Errorf("autoupdate rules not carried: %+v", streams)
	}
}

func TestSubscribe_StopEndsSession(t *testing.T) {
	client := startServer(t, &enginetest.Echo{}, false)

	records := make(chan engine.Record)
	sub, err := client.Subscribe(context.Background(), randomWalkSpec(t).StreamRequest(false), records)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	records <- engine.Record{Name: "y", Value: 1}

	select {
	case <-sub.Updates():
	case <-time.After(5 * time.Second):
		t.Fatal("no update before stop")
	}

	sub.Stop()
	sub.Stop()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after Stop")
	}
	if !errors.Is(sub.Err(), engine.ErrStopped) {
		t.Errorf("Err = %v, want ErrStopped", sub.Err())
	}
}

// #endregion stream-tests

// #region health-tests
func TestWaitReady_Serving(t *testing.T) {
	client := startServer(t, &enginetest.Echo{}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReady_TimesOutWithoutHealth(t *testing.T) {
	client := startServer(t, &enginetest.Echo{}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := client.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitReady err = %v, want deadline exceeded", err)
	}
}

// #endregion health-tests
