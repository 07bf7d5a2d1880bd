// Package gateway はエッジAPIゲートウェイの内部実装を提供する。
//
// すべてのリクエストにCORSポリシーを適用し、ヘルスチェック以外は起動データで
// 呼び出し元を認証してから操作種別ごとのレート制限を行い、各リソースのハンドラに振り分ける。
// プロフィールは読み込みキャッシュ付きで直接提供し、通知は宛先が呼び出し元本人で
// あることを確認してから通知サービスに転送する。
// その他のリソース（タスク、習慣、目標など）は Resource として外部から登録する。
package gateway
