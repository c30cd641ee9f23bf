package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/sofie-labs/facedancer/pkg/provider/stt"
	sttmock "github.com/sofie-labs/facedancer/pkg/provider/stt/mock"
)

func startTranscriber(t *testing.T) (*Transcriber, *sttmock.Session) {
	t.Helper()
	sess := sttmock.NewSession()
	tr := NewTranscriber(sess, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = tr.Run(ctx) }()
	return tr, sess
}

func recvUtterance(t *testing.T, tr *Transcriber) Utterance {
	t.Helper()
	select {
	case u := <-tr.Utterances():
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for utterance")
		return Utterance{}
	}
}

func TestTranscriber_SpeechStartOncePerUtterance(t *testing.T) {
	t.Parallel()

	tr, sess := startTranscriber(t)

	// Several interim fragments before finalization.
	sess.Emit(stt.Transcript{Text: "hel"})
	sess.Emit(stt.Transcript{Text: "hello th"})
	sess.Emit(stt.Transcript{Text: "hello there", IsFinal: true, SpeechFinal: true})

	select {
	case <-tr.SpeechStarts():
	case <-time.After(time.Second):
		t.Fatal("no speech-start signal")
	}
	select {
	case <-tr.SpeechStarts():
		t.Fatal("speech-start re-emitted within one utterance")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTranscriber_SpeechStartRearmsAfterUtterance(t *testing.T) {
	t.Parallel()

	tr, sess := startTranscriber(t)

	sess.Emit(stt.Transcript{Text: "one", IsFinal: true, SpeechFinal: true})
	recvUtterance(t, tr)
	<-tr.SpeechStarts()

	sess.Emit(stt.Transcript{Text: "two", IsFinal: true, SpeechFinal: true})
	select {
	case <-tr.SpeechStarts():
	case <-time.After(time.Second):
		t.Fatal("speech-start not re-armed for second utterance")
	}
}

func TestTranscriber_JoinsFinalFragments(t *testing.T) {
	t.Parallel()

	tr, sess := startTranscriber(t)

	sess.Emit(stt.Transcript{Text: "hello there", IsFinal: true})
	sess.Emit(stt.Transcript{Text: "how is it", IsFinal: true})
	sess.Emit(stt.Transcript{Text: "going", IsFinal: true, SpeechFinal: true})

	u := recvUtterance(t, tr)
	if u.Text != "hello there how is it going" {
		t.Errorf("utterance = %q", u.Text)
	}
	if u.Timestamp.IsZero() {
		t.Error("utterance has zero timestamp")
	}
}

func TestTranscriber_InterimFragmentsNotAccumulated(t *testing.T) {
	t.Parallel()

	tr, sess := startTranscriber(t)

	sess.Emit(stt.Transcript{Text: "hel"})
	sess.Emit(stt.Transcript{Text: "hello"})
	sess.Emit(stt.Transcript{Text: "hello world", IsFinal: true, SpeechFinal: true})

	u := recvUtterance(t, tr)
	if u.Text != "hello world" {
		t.Errorf("utterance = %q, interims leaked into buffer", u.Text)
	}
}

func TestTranscriber_EmptyFragmentsIgnored(t *testing.T) {
	t.Parallel()

	tr, sess := startTranscriber(t)

	sess.Emit(stt.Transcript{Text: ""})
	sess.Emit(stt.Transcript{Text: "   "})

	select {
	case <-tr.SpeechStarts():
		t.Fatal("speech-start fired for empty fragment")
	case <-time.After(50 * time.Millisecond):
	}

	sess.Emit(stt.Transcript{Text: "real words", IsFinal: true, SpeechFinal: true})
	if u := recvUtterance(t, tr); u.Text != "real words" {
		t.Errorf("utterance = %q", u.Text)
	}
}

func TestTranscriber_ChannelsCloseWhenStreamEnds(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	tr := NewTranscriber(sess, quietLogger())

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()

	_ = sess.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on stream close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stream close")
	}
	if _, ok := <-tr.Utterances(); ok {
		t.Error("utterance channel still open")
	}
}

func TestTranscriber_ForwardAudio(t *testing.T) {
	t.Parallel()

	tr, sess := startTranscriber(t)

	if err := tr.ForwardAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("ForwardAudio: %v", err)
	}
	sent := sess.SentAudio()
	if len(sent) != 1 || len(sent[0]) != 3 {
		t.Errorf("forwarded audio = %v", sent)
	}
}
