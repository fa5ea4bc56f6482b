package control

import (
	"bytes"
	"errors"
	"testing"
)

const configJSON = `{"uri":"/beginConfigRequest","wifiID":"x","wifiPassword":"y","serverIP":"10.0.0.5"}`

func collect() (*Framer, *[]string) {
	var got []string
	return NewFramer(func(p []byte) { got = append(got, string(p)) }), &got
}

func TestFramerSplits(t *testing.T) {
	frame, err := EncodeFrame([]byte(configJSON))
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	for _, size := range []int{len(frame), len(frame) - 1, 1, 2, 7} {
		f, got := collect()
		for data := frame; len(data) > 0; {
			n := min(size, len(data))
			f.Feed(data[:n])
			data = data[n:]
		}
		if len(*got) != 1 || (*got)[0] != configJSON {
			t.Errorf("pieces of %d: dispatched %q", size, *got)
		}
		if f.Pending() != 0 {
			t.Errorf("pieces of %d: %d bytes left pending", size, f.Pending())
		}
	}
}

func TestFramerMultiple(t *testing.T) {
	a, _ := EncodeFrame([]byte(`{"uri":"a"}`))
	b, _ := EncodeFrame([]byte(`{"uri":"b"}`))
	c, _ := EncodeFrame([]byte(`{"uri":"c"}`))

	f, got := collect()
	f.Feed(append(append([]byte{}, a...), b...))
	if len(*got) != 2 || (*got)[0] != `{"uri":"a"}` || (*got)[1] != `{"uri":"b"}` {
		t.Fatalf("two frames dispatched %q", *got)
	}

	// A trailing NUL, then a frame straddling two deliveries.
	data := append(append([]byte{0}, c...), a[:3]...)
	f.Feed(data)
	f.Feed(a[3:])
	if len(*got) != 4 || (*got)[2] != `{"uri":"c"}` || (*got)[3] != `{"uri":"a"}` {
		t.Fatalf("dispatched %q", *got)
	}
}

func TestFramerPartialForever(t *testing.T) {
	f, got := collect()
	f.Feed([]byte{200, 'x'})
	for i := 0; i < 100; i++ {
		f.Feed([]byte{'x'})
	}
	if len(*got) != 0 || f.Pending() != 102 {
		t.Fatalf("dispatched %d, pending %d", len(*got), f.Pending())
	}
}

func TestEncodeFrame(t *testing.T) {
	f, err := EncodeFrame([]byte("abc"))
	if err != nil || !bytes.Equal(f, []byte{3, 'a', 'b', 'c'}) {
		t.Fatalf("EncodeFrame: %v, %v", f, err)
	}
	if _, err := EncodeFrame(make([]byte, 256)); !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("256 byte payload: %v", err)
	}
	if _, err := EncodeFrame(make([]byte, 255)); err != nil {
		t.Fatalf("255 byte payload: %v", err)
	}
}
