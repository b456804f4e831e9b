package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_open(const char *lang)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs = { 0 };
	specs.languages = lang;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }

	return 0;
}

static int
espeak_say(const char *text, int rate)
{
	if (!text)
	{ return -1; }

	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	espeak_Synchronize();
	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak speaks text on the local output device through espeak-ng. It needs
// no relay round trip and serves as the offline speaker.
type Espeak struct {
	mu   sync.Mutex
	rate int
}

func NewEspeak(language string, rate int) (*Espeak, error) {
	if language == "" {
		language = "tr"
	}

	clang := C.CString(language)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.espeak_open(clang); rc != 0 {
		return nil, fmt.Errorf("espeak init (%s) failed: %d", language, int(rc))
	}

	return &Espeak{rate: rate}, nil
}

// Speak blocks until the text has been spoken. Cancelling ctx cuts it short.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan C.int, 1)
	go func() {
		done <- C.espeak_say(ctext, C.int(e.rate))
	}()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak_say failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.espeak_Cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Espeak) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Terminate()
}
