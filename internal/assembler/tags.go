package assembler

// Tag values for the bitstream's tag-chunk framing (spec §6). All are
// 16-bit; the high bit clear means mandatory, high bit set means
// optional/skippable, per the wire convention described there.
const (
	TagSample              uint16 = 0x0001
	TagIntraframe          uint16 = 0x0002
	TagSampleSize          uint16 = 0x0003
	TagFrameNumber         uint16 = 0x0004
	TagPrecision           uint16 = 0x0005
	TagEncodedFormat       uint16 = 0x0006
	TagChannelsPerFrame    uint16 = 0x0007
	TagSubbandCount        uint16 = 0x0008
	TagChannelSizeTable    uint16 = 0x0009
	TagMetadata            uint16 = 0x000A
	TagFreespace           uint16 = 0x000B
	TagHighpassHeader      uint16 = 0x000C
	TagHighpassTrailer     uint16 = 0x000D
	TagChannelHeader       uint16 = 0x000E
	TagBandHeader          uint16 = 0x000F
	TagBandTrailer         uint16 = 0x0010
	TagBandEndCode         uint16 = 0x0011
	TagBandMidpoint        uint16 = 0x0012
	TagPeakTable           uint16 = 0x0013
	TagPeakLevel           uint16 = 0x0014
	TagPeakTableOffsetL    uint16 = 0x0015
	TagPeakTableOffsetH    uint16 = 0x0016
	TagUncompress          uint16 = 0x0017 // carries a 24-bit size, see emitUncompressed
	TagEncodedChannels     uint16 = 0x0018 | 0x8000
	TagEncodedChannelNum   uint16 = 0x0019 | 0x8000
	TagGroupTrailer        uint16 = 0x001A
	TagIntraframeTrailer   uint16 = 0x001B
	TagColorSpace          uint16 = 0x001C
	TagQuality             uint16 = 0x001D
	TagInputFormat         uint16 = 0x001E
	TagDimensions          uint16 = 0x001F
	TagLowpassHeader       uint16 = 0x0020
	TagLowpassConstant     uint16 = 0x0021
)

// LowpassConstantSentinel marks a whole-constant lowpass band (§4.6).
const LowpassConstantSentinel uint32 = 0xFFFFFFFF

// freespaceReserve is the default free-space TLV size reserved in
// every sample's metadata block (§4.7 step 5).
const freespaceReserve = 512
