package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

type stubRetriever struct {
	result *rag.Result
	err    error
	got    rag.Request
}

func (s *stubRetriever) Retrieve(_ context.Context, req rag.Request) (*rag.Result, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubAnswerer struct {
	reply    string
	err      error
	calls    int
	question string
	context  string
}

func (s *stubAnswerer) Answer(_ context.Context, question, contextText string) (string, error) {
	s.calls++
	s.question, s.context = question, contextText
	return s.reply, s.err
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, &stubAnswerer{}); err == nil {
		t.Error("expected error for nil retriever")
	}
	if _, err := New(&stubRetriever{}, nil); err == nil {
		t.Error("expected error for nil answerer")
	}
}

func TestAsk_Grounded(t *testing.T) {
	t.Parallel()
	chunks := []rag.RetrievedChunk{{Text: "The sky is blue.", Score: 0.9, SourceID: "doc"}}
	ret := &stubRetriever{result: &rag.Result{Context: "The sky is blue.", Chunks: chunks}}
	ans := &stubAnswerer{reply: "Blue."}
	a, err := New(ret, ans)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := a.Ask(t.Context(), Question{Text: "What colour is the sky?", SourceIDs: []string{" doc ", ""}, TopK: 5})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Response != "Blue." || !reply.Grounded || len(reply.Sources) != 1 {
		t.Errorf("reply = %+v", reply)
	}
	if ans.question != "What colour is the sky?" || ans.context != "The sky is blue." {
		t.Errorf("answerer got (%q, %q)", ans.question, ans.context)
	}
	if len(ret.got.SourceIDs) != 1 || ret.got.SourceIDs[0] != "doc" || ret.got.TopK != 5 {
		t.Errorf("retrieval request = %+v", ret.got)
	}
}

func TestAsk_NoContextSkipsModel(t *testing.T) {
	t.Parallel()
	ans := &stubAnswerer{reply: "should not be used"}
	a, err := New(&stubRetriever{result: &rag.Result{}}, ans)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := a.Ask(t.Context(), Question{Text: "anything?", SourceIDs: []string{"doc"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.calls != 0 {
		t.Errorf("answerer called %d times, want 0", ans.calls)
	}
	if reply.Response != NoContextReply || reply.Grounded || reply.Sources == nil {
		t.Errorf("reply = %+v", reply)
	}
}

func TestAsk_PropagatesErrors(t *testing.T) {
	t.Parallel()

	retErr := errors.New("index down")
	a, _ := New(&stubRetriever{err: retErr}, &stubAnswerer{})
	if _, err := a.Ask(t.Context(), Question{Text: "q", SourceIDs: []string{"d"}}); !errors.Is(err, retErr) {
		t.Errorf("want retriever error, got %v", err)
	}

	ansErr := errors.New("model down")
	a, _ = New(&stubRetriever{result: &rag.Result{Context: "c"}}, &stubAnswerer{err: ansErr})
	if _, err := a.Ask(t.Context(), Question{Text: "q", SourceIDs: []string{"d"}}); !errors.Is(err, ansErr) {
		t.Errorf("want answerer error, got %v", err)
	}
}

func TestRespond(t *testing.T) {
	t.Parallel()
	ans := &stubAnswerer{reply: "done"}
	a, _ := New(&stubRetriever{}, ans)
	ctx := t.Context()

	if _, err := a.Respond(ctx, " ", "ctx"); !errors.Is(err, rag.ErrEmptyQuery) {
		t.Errorf("want ErrEmptyQuery, got %v", err)
	}
	if got, err := a.Respond(ctx, "q", "  "); err != nil || got != NoContextReply {
		t.Errorf("empty context: got (%q, %v)", got, err)
	}
	if got, err := a.Respond(ctx, "q", "some context"); err != nil || got != "done" {
		t.Errorf("Respond = (%q, %v)", got, err)
	}
	if ans.calls != 1 {
		t.Errorf("answerer called %d times, want 1", ans.calls)
	}
}

func TestContext_AppliesDefaultLimits(t *testing.T) {
	t.Parallel()
	ret := &stubRetriever{result: &rag.Result{}}
	a, err := New(ret, &stubAnswerer{}, WithLimits(7, 2500))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := a.Context(t.Context(), Question{Text: "q", SourceIDs: []string{"d"}}); err != nil {
		t.Fatalf("Context: %v", err)
	}
	if ret.got.TopK != 7 || ret.got.MaxContextUnits != 2500 {
		t.Errorf("defaults not applied: %+v", ret.got)
	}

	if _, err := a.Context(t.Context(), Question{Text: "q", SourceIDs: []string{"d"}, TopK: 2, MaxContextUnits: 100}); err != nil {
		t.Fatalf("Context: %v", err)
	}
	if ret.got.TopK != 2 || ret.got.MaxContextUnits != 100 {
		t.Errorf("explicit limits overridden: %+v", ret.got)
	}
}
