package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotbotlabs/rotbot/internal/bus"
)

// fakePlatform records StreamEditor calls. It implements Editable but
// not textDeleter; fakeDeletingPlatform adds deletion on top.
type fakePlatform struct {
	mu           sync.Mutex
	sends        []string // streamed preview sends: "chatID|text"
	edits        []string
	finalEdits   []string
	finalSends   []string
	failFinalize bool
	nextID       int
}

func (f *fakePlatform) SendText(_ context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sends = append(f.sends, chatID+"|"+text)
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakePlatform) EditText(_ context.Context, chatID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, chatID+"|"+messageID+"|"+text)
	return nil
}

func (f *fakePlatform) FinalizeText(_ context.Context, chatID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFinalize {
		return errors.New("edit rejected")
	}
	f.finalEdits = append(f.finalEdits, chatID+"|"+messageID+"|"+text)
	return nil
}

func (f *fakePlatform) SendFinal(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalSends = append(f.finalSends, chatID+"|"+text)
	return nil
}

type fakeDeletingPlatform struct {
	fakePlatform
	deletes []string
}

func (f *fakeDeletingPlatform) DeleteText(_ context.Context, chatID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, chatID+"|"+messageID)
	return nil
}

func chunkFor(chatID, accumulated string) bus.StreamChunk {
	return bus.StreamChunk{Channel: "test", ChatID: chatID, Accumulated: accumulated}
}

// TestStreamEditor_SendsThenEdits verifies the first visible chunk posts
// a preview with the cursor glyph and later chunks edit it in place.
func TestStreamEditor_SendsThenEdits(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, 20*time.Millisecond)
	ctx := context.Background()

	if err := editor.Apply(ctx, chunkFor("42", "Hel")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(fake.sends) != 1 || fake.sends[0] != "42|Hel"+streamCursor {
		t.Fatalf("expected preview send with cursor, got %q", fake.sends)
	}

	time.Sleep(30 * time.Millisecond)
	if err := editor.Apply(ctx, chunkFor("42", "Hello world")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(fake.edits) != 1 || fake.edits[0] != "42|msg-1|Hello world"+streamCursor {
		t.Fatalf("expected in-place edit, got %q", fake.edits)
	}
}

// TestStreamEditor_ThrottlesEdits verifies chunks arriving faster than
// the edit interval are dropped rather than queued.
func TestStreamEditor_ThrottlesEdits(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, 500*time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "one"))
	editor.Apply(ctx, chunkFor("42", "one two"))
	editor.Apply(ctx, chunkFor("42", "one two three"))

	if len(fake.sends) != 1 {
		t.Errorf("expected 1 send, got %d", len(fake.sends))
	}
	if len(fake.edits) != 0 {
		t.Errorf("expected throttled chunks to be dropped, got %d edits", len(fake.edits))
	}
}

// TestStreamEditor_SkipsBlankChunks verifies whitespace-only accumulated
// text neither posts a message nor consumes the rate budget.
func TestStreamEditor_SkipsBlankChunks(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, 500*time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "  \n "))
	if len(fake.sends) != 0 {
		t.Fatalf("expected no send for blank chunk, got %q", fake.sends)
	}

	editor.Apply(ctx, chunkFor("42", "hello"))
	if len(fake.sends) != 1 {
		t.Errorf("blank chunk should not consume the edit budget, got %d sends", len(fake.sends))
	}
}

// TestStreamEditor_TruncatesPreview verifies oversized previews are cut
// at the rune cap with an ellipsis before the cursor.
func TestStreamEditor_TruncatesPreview(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 10, time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "abcdefghijklmno"))
	if len(fake.sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(fake.sends))
	}
	want := "42|abcdefg..." + streamCursor
	if fake.sends[0] != want {
		t.Errorf("expected %q, got %q", want, fake.sends[0])
	}
}

// TestStreamEditor_FinalizeEditsInPlace verifies a final reply that fits
// the cap replaces the preview instead of sending a new message.
func TestStreamEditor_FinalizeEditsInPlace(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "Hel"))
	if err := editor.Finalize(ctx, "42", "Hello world"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if len(fake.finalEdits) != 1 || fake.finalEdits[0] != "42|msg-1|Hello world" {
		t.Errorf("expected final in-place edit, got %q", fake.finalEdits)
	}
	if len(fake.finalSends) != 0 {
		t.Errorf("expected no fresh send, got %q", fake.finalSends)
	}
}

// TestStreamEditor_FinalizeFallsBackToSend verifies a rejected final
// edit falls back to sending the reply fresh.
func TestStreamEditor_FinalizeFallsBackToSend(t *testing.T) {
	fake := &fakePlatform{failFinalize: true}
	editor := NewStreamEditor(fake, 100, time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "Hel"))
	if err := editor.Finalize(ctx, "42", "Hello world"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(fake.finalSends) != 1 || fake.finalSends[0] != "42|Hello world" {
		t.Errorf("expected fallback send, got %q", fake.finalSends)
	}
}

// TestStreamEditor_FinalizeOverflowDeletesPreview verifies an oversized
// final reply removes the preview first on platforms that can delete.
func TestStreamEditor_FinalizeOverflowDeletesPreview(t *testing.T) {
	fake := &fakeDeletingPlatform{}
	editor := NewStreamEditor(fake, 10, time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "short"))
	long := strings.Repeat("y", 25)
	if err := editor.Finalize(ctx, "42", long); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if len(fake.deletes) != 1 || fake.deletes[0] != "42|msg-1" {
		t.Errorf("expected preview delete, got %q", fake.deletes)
	}
	if len(fake.finalSends) != 1 || fake.finalSends[0] != "42|"+long {
		t.Errorf("expected split send of full reply, got %q", fake.finalSends)
	}
	if len(fake.finalEdits) != 0 {
		t.Errorf("expected no final edit for overflow, got %q", fake.finalEdits)
	}
}

// TestStreamEditor_FinalizeOverflowWithoutDeleter verifies platforms
// without message deletion just send the oversized reply fresh.
func TestStreamEditor_FinalizeOverflowWithoutDeleter(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 10, time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "short"))
	long := strings.Repeat("y", 25)
	if err := editor.Finalize(ctx, "42", long); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(fake.finalSends) != 1 {
		t.Errorf("expected 1 fresh send, got %d", len(fake.finalSends))
	}
}

// TestStreamEditor_FinalizeWithoutPreview verifies a reply with no live
// preview (platform never streamed) is sent directly, and an empty reply
// produces nothing.
func TestStreamEditor_FinalizeWithoutPreview(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, time.Millisecond)
	ctx := context.Background()

	if err := editor.Finalize(ctx, "42", "direct reply"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(fake.finalSends) != 1 || fake.finalSends[0] != "42|direct reply" {
		t.Errorf("expected direct send, got %q", fake.finalSends)
	}

	if err := editor.Finalize(ctx, "43", ""); err != nil {
		t.Fatalf("finalize empty: %v", err)
	}
	if len(fake.finalSends) != 1 {
		t.Errorf("empty reply should send nothing, got %q", fake.finalSends)
	}
}

// TestStreamEditor_FinalChunkDelegates verifies a chunk flagged final
// routed through Apply completes the stream.
func TestStreamEditor_FinalChunkDelegates(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, time.Millisecond)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("42", "Hel"))
	final := chunkFor("42", "Hello")
	final.IsFinal = true
	if err := editor.Apply(ctx, final); err != nil {
		t.Fatalf("apply final: %v", err)
	}
	if len(fake.finalEdits) != 1 {
		t.Errorf("expected final edit, got %q", fake.finalEdits)
	}
}

// TestStreamEditor_IndependentChats verifies streams in different chats
// get their own preview messages and rate budgets.
func TestStreamEditor_IndependentChats(t *testing.T) {
	fake := &fakePlatform{}
	editor := NewStreamEditor(fake, 100, time.Minute)
	ctx := context.Background()

	editor.Apply(ctx, chunkFor("1", "first"))
	editor.Apply(ctx, chunkFor("2", "second"))
	if len(fake.sends) != 2 {
		t.Fatalf("expected a preview per chat, got %q", fake.sends)
	}

	editor.Finalize(ctx, "1", "done one")
	if len(fake.finalEdits) != 1 || fake.finalEdits[0] != "1|msg-1|done one" {
		t.Errorf("expected chat 1 finalized alone, got %q", fake.finalEdits)
	}
}
