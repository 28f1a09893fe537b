package main

import "testing"

// TestReadAACSpecificConfigThreadsCursor is a regression test for the
// Bitop value/pointer-receiver bug: object type, sampling index, and
// channel config must come from three distinct, advancing bit windows
// rather than all reading the same leading bits.
func TestReadAACSpecificConfigThreadsCursor(t *testing.T) {
	// AudioSpecificConfig bits: objectType=2 (5b) + samplingIndex=4 (4b) +
	// chanConfig=2 (4b), padded to 16 bits: 0001 0010 0001 0000.
	payload := []byte{0x00, 0x00, 0x12, 0x10}

	cfg := readAACSpecificConfig(payload)

	if cfg.object_type != 2 {
		t.Fatalf("expected object_type 2 (AAC LC), got %d", cfg.object_type)
	}
	if cfg.sampling_index != 4 {
		t.Fatalf("expected sampling_index 4, got %d", cfg.sampling_index)
	}
	if cfg.sample_rate != 44100 {
		t.Fatalf("expected sample_rate 44100, got %d", cfg.sample_rate)
	}
	if cfg.chan_config != 2 {
		t.Fatalf("expected chan_config 2, got %d", cfg.chan_config)
	}
	if cfg.channels != 2 {
		t.Fatalf("expected channels 2, got %d", cfg.channels)
	}
}

func TestGetAACProfileName(t *testing.T) {
	cases := []struct {
		objectType uint32
		sbr        int32
		ps         int32
		want       string
	}{
		{objectType: 1, want: "Main"},
		{objectType: 2, sbr: -1, ps: -1, want: "LC"},
		{objectType: 2, sbr: 1, ps: -1, want: "HE"},
		{objectType: 2, sbr: 1, ps: 1, want: "HEv2"},
		{objectType: 5, want: "SBR"},
		{objectType: 99, want: ""},
	}

	for _, c := range cases {
		got := getAACProfileName(AACSpecificConfig{object_type: c.objectType, sbr: c.sbr, ps: c.ps})
		if got != c.want {
			t.Fatalf("objectType=%d sbr=%d ps=%d: expected %q, got %q", c.objectType, c.sbr, c.ps, c.want, got)
		}
	}
}

func TestReadAVCSpecificConfigDispatchesByCodec(t *testing.T) {
	h264 := readAVCSpecificConfig([]byte{byte(AVC_CODEC_H264), 0, 0, 0, 0, 0})
	if h264.codec != AVC_CODEC_H264 {
		t.Fatalf("expected codec %d, got %d", AVC_CODEC_H264, h264.codec)
	}

	hevc := readAVCSpecificConfig([]byte{byte(AVC_CODEC_HEVC), 0, 0, 0, 0})
	if hevc.codec != AVC_CODEC_HEVC {
		t.Fatalf("expected codec %d, got %d", AVC_CODEC_HEVC, hevc.codec)
	}
}

func TestGetAVCProfileNameH264(t *testing.T) {
	cfg := AVCSpecificConfig{codec: AVC_CODEC_H264, h264: H264SpecificConfig{profile: 100}}
	if got := getAVCProfileName(cfg); got != "High" {
		t.Fatalf("expected 'High', got %q", got)
	}

	cfg.h264.profile = 66
	if got := getAVCProfileName(cfg); got != "Baseline" {
		t.Fatalf("expected 'Baseline', got %q", got)
	}
}
