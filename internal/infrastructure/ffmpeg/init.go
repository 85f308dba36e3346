package ffmpeg

import "github.com/google/wire"

// ProviderSet 暴露转码器构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(NewTranscoder)
