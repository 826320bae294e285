package format

import "testing"

func TestYUYVConverterSplitsPlanes(t *testing.T) {
	// 4x2 frame, pitch==width, one 4-byte YUYV group per 2 pixels.
	w, h := 4, 2
	pixels := make([]byte, w*h*2)
	for row := 0; row < h; row++ {
		for x := 0; x < w/2; x++ {
			i := row*w*2 + x*4
			pixels[i] = byte(10 + x)   // Y0
			pixels[i+1] = byte(100)    // U
			pixels[i+2] = byte(20 + x) // Y1
			pixels[i+3] = byte(200)    // V
		}
	}

	planes, err := YUYVConverter{}.Planes(pixels, PlaneLayout{Width: w, Height: h, Pitch: w})
	if err != nil {
		t.Fatal(err)
	}
	if len(planes) != 3 {
		t.Fatalf("got %d planes, want 3", len(planes))
	}
	y, u, v := planes[0], planes[1], planes[2]
	if len(y) != w*h || len(u) != (w/2)*h || len(v) != (w/2)*h {
		t.Fatalf("plane sizes: y=%d u=%d v=%d", len(y), len(u), len(v))
	}
	if y[0] != 10 || y[1] != 20 {
		t.Fatalf("got y[0]=%d y[1]=%d, want 10,20", y[0], y[1])
	}
	if u[0] != 100 || v[0] != 200 {
		t.Fatalf("got u[0]=%d v[0]=%d, want 100,200", u[0], v[0])
	}
}

func TestYUYVConverterRejectsOddWidth(t *testing.T) {
	_, err := YUYVConverter{}.Planes(make([]byte, 100), PlaneLayout{Width: 3, Height: 2, Pitch: 3})
	if err == nil {
		t.Fatal("expected an error for odd width")
	}
}

func TestYUYVConverterRejectsShortBuffer(t *testing.T) {
	_, err := YUYVConverter{}.Planes(make([]byte, 2), PlaneLayout{Width: 4, Height: 2, Pitch: 4})
	if err == nil {
		t.Fatal("expected an error for a too-small buffer")
	}
}
