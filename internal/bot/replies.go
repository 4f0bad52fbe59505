package bot

// User-facing texts. Messages are sent without a parse mode, so nothing here
// needs escaping.
const (
	textWelcome       = "🤖 Welcome to File Access Bot!\n\n📝 Write code and get your file."
	textPromptCode    = "Please type your access code:"
	textNotACode      = "❓ Please send a valid 8-character access code or use /help for assistance."
	textUnknownCmd    = "❓ Unknown command. Use /help to see what I can do."
	textGenericError  = "❌ Something went wrong. Please try again later."
	textMustJoin      = "⚠️ You must join our backup channel to access files!"
	textInvalidCode   = "❌ Invalid access code. Please check and try again."
	textSendFailed    = "❌ Error sending file. Please try again later."
	textNotJoinedYet  = "❌ You have not joined yet! Please join the channel first."
	textJoinVerified  = "✅ Great! Now processing your access code..."
	textButtonExpired = "This button is no longer valid. Send your code again."

	buttonJoin      = "📢 Join Channel"
	buttonJoined    = "✅ I Joined"
	buttonEnterCode = "⌨️ Enter Code"

	textOwnerOnly     = "❌ This command is for the owner only."
	textNotUploader   = "❌ You are not authorized to upload files."
	textAskDesc       = "📝 Please provide a description for this file (max 50 characters):"
	textAskFile       = "📎 Now send the file you want to upload."
	textDescTooLong   = "❌ Description too long. Max 50 characters."
	textDescEmpty     = "❌ Description cannot be empty."
	textWaitingFile   = "📎 Waiting for the file: send a video, document, audio, photo, animation or voice. Use /cancel to stop."
	textDescFirst     = "📝 Send the description first (max 50 characters)."
	textUploadFirst   = "❌ Use /upload command first to start uploading."
	textSaveFailed    = "❌ Could not save the file. Please send it again."
	textCancelled     = "🚫 Upload cancelled."
	textNothingCancel = "There is no upload in progress."
	textUploaded      = "✅ File uploaded successfully!\n\n🔑 Access Code: %s\n📁 Description: %s\n\nShare this code with users to give them access to the file."

	textUsageAuthorize = "❌ Usage: /authorize <user_id>"
	textUsageRevoke    = "❌ Usage: /revoke <user_id>"
	textUsageBroadcast = "❌ Usage: /broadcast <your message>"
	textGranted        = "✅ User %d is now authorized to upload files."
	textAlreadyGranted = "ℹ️ User %d is already authorized."
	textRevoked        = "✅ Upload permission revoked for user %d."
	textNotGranted     = "ℹ️ User %d was not authorized."

	textNoFiles       = "📂 No files uploaded yet."
	textFilesHeader   = "📂 Latest files (%d of %d):\n"
	textBroadcasting  = "📤 Broadcasting message..."
	textBroadcastHead = "📢 Broadcast Message:\n\n"
	textBroadcastDone = "✅ Broadcast Complete!\n\n📤 Sent: %d\n❌ Failed: %d"
	textStats         = "👥 Total Users: %d\n🔐 Authorized uploaders: %d\n📁 Files: %d\n⏳ Pending deletions: %d"
	textNoBackup      = "Backups are not configured."
	textBackupDone    = "💾 Backup stored as %s (%d files).\n%s"
)

const textUserHelp = `👤 How to use:
1. Join our backup channel
2. Send me your access code
3. Get your file (available for 15 minutes)

Need help? Contact the bot owner!`

const textUploaderHelp = `📤 Uploader Commands:
/upload - Upload a new file
/cancel - Abort the current upload

👤 Send an access code to get a file.`

const textOwnerHelp = `🔧 Owner Commands:
/check_users - View user and file counts
/broadcast <message> - Send message to all users
/authorize <user_id> - Authorize user to upload files
/revoke <user_id> - Revoke upload permission
/upload - Upload a new file
/cancel - Abort the current upload
/list_files - List recently uploaded files
/backup - Store a catalog backup

👤 User Commands:
Just send an access code to get your file!`
