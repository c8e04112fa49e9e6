package interview

import "fmt"

// Spoken instructions sent to the speech service per stage. The model is
// told exactly what to read so the script stays deterministic.

// SystemInstructions is the session-level instruction set; per-stage
// prompts below ride on individual response requests.
const SystemInstructions = `あなたは株式会社パインズのAI面接官です。
ユーザーの回答を遮らないでください。
相槌は適度に入れてください。`

const greetingScript = `次のセリフを正確に読み上げてください：
「お忙しいところ、お時間をいただき、ありがとうございます。株式会社パインズのAI面接官です。
只今、面接のお時間はよろしいでしょうか？10分から15分程度となります。はい、か、いいえ、でお答えください。
お話しいただいた内容は録音され、担当者に伝えられます。」`

const rescheduleScript = `謝罪し、都合の良い日時を改めてご連絡いただくようお願いしてください。その後、end_call関数を呼び出してください。`

const reverseQAPrompt = `「すべての質問が終わりました。逆に、弊社について聞きたいことはありますか？」と尋ねてください。`

const closingScript = `次のセリフを正確に読み上げてください：
「本日の面接は以上となります。合否の結果は、7営業日以内に応募サイトよりご連絡いたします。お忙しい中、お時間をいただきありがとうございました。失礼いたします。」
読み上げた後、end_call関数を呼び出してください。`

const apologyPrompt = `「申し訳ありません、うまく聞き取れませんでした。もう一度お願いします。」と言ってください。`

func askQuestionPrompt(number int, text string) string {
	return fmt.Sprintf("「ありがとうございます。」と言い、次の質問をしてください：「質問%d：%s」回答が終わったら「以上です」と言っていただくよう、最初の質問のときのみ案内してください。", number, text)
}

func resumePrompt(number int, text string) string {
	return fmt.Sprintf("次のセリフを読み上げてください：「先ほどは通話が途切れてしまい、失礼いたしました。面接の続きから再開させていただきます。」その後、次の質問をしてください：「質問%d：%s」", number, text)
}

func reverseAnswerPrompt(topic string) string {
	if topic == "" {
		return "「その点については、合格された場合にお答えします。他に質問はありますか？」と言ってください。"
	}
	return fmt.Sprintf("「%sについてのご質問ですね。その点については、合格された場合にお答えします。他に質問はありますか？」と言ってください。", topic)
}
