package bot

const (
	textGreeting = "👋 Hi! Send me a link to a video and I will show the formats available for download."
	textSendLink = "Send me a link to a video."
	textProbing  = "⏳ Fetching the list of formats..."

	textProbeFailed = "❌ Error fetching formats:\n<code>%s</code>"
	textNoFormats   = "❌ No formats found for this URL."

	textHeader       = "🎬 <b>%s</b>"
	textHeaderLength = "\n⏱ %d:%02d"
	textHeaderFooter = "\n\n📋 Formats found: %d\nChoose a format to download:"

	textSessionExpired = "⏰ Session expired. Send the link again."
	textNotYours       = "🚫 This is not your request."
	textFormatNotFound = "❌ Format not found."
	textTooMany        = "⏳ At most %d parallel downloads. Please wait."
	textNotNow         = "This action is no longer available."
	textCancelled      = "❌ Cancelled."

	textCustomPrompt = "Type the format to download, for example:\n" +
		"<code>251</code> for a single format\n" +
		"<code>315+251</code> for video + audio\n" +
		"<code>bestvideo+bestaudio</code> for the best quality\n\n" +
		"Or send a new link instead."
	textFormatTooLong = "❌ Format expression is too long."

	textAdRemovalPrompt = "🔇 Remove sponsor segments (SponsorBlock)?"
	textChosenFormat    = "Selected format: <b>%s</b>\n\n"
	textAdRemovalYes    = "✅ Yes, remove ads"
	textAdRemovalNo     = "⏩ No, download as is"
	textCancel          = "❌ Cancel"
	textRetry           = "🔄 Retry download"

	textStarting    = "⬇️ Downloading: %s%s\n\nPreparing..."
	textResuming    = "🔄 Resuming download: %s%s\n\nPreparing..."
	textSponsorMark = " | SponsorBlock ✅"
	textProgress    = "⬇️ Downloading..."
	textUploading   = "📤 Sending file..."

	textFileMissing = "❌ Error: file not found after download."
	textFailed      = "❌ Download failed:\n<code>%s</code>"
	textTooLarge    = "📦 File is too large for Telegram (%s).\n\n" +
		"⬇️ <a href=\"%s\">Download file</a>\n\n" +
		"The link is valid for %s."
	textTransient = "❌ Download error:\n<code>%s</code>\n\n" +
		"The partial file is kept. Press Retry to continue where it stopped."
	textFatal = "❌ An error occurred:\n<code>%s</code>\n\n" +
		"Press Retry to resume the download."
)
